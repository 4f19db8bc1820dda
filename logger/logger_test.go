package logger_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/logger"
)

func TestNew(t *testing.T) {
	log, err := logger.New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log, err = logger.New("", "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	_, err = logger.New("loud", "json")
	assert.Error(t, err)
	_, err = logger.New("info", "xml")
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)

	ctx := logger.WithContext(context.Background(), log)
	from := logger.FromContext(ctx)
	from.Info().Str("k", "v").Msg("hello")

	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestFromContext_Missing(t *testing.T) {
	log := logger.FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}
