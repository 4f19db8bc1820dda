package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func q(s string) ledger.Quantity {
	return ledger.NewQuantity(decimal.RequireFromString(s), ledger.UnitGrams)
}

func TestSQLite_EmptyStoreIsNotFound(t *testing.T) {
	st := newStore(t)
	_, err := st.Load(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLite_RecorderRoundTrip(t *testing.T) {
	// GIVEN: a recorder writing to SQLite
	ctx := context.Background()
	st := newStore(t)
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local) }
	rec, err := ledger.Open(ctx, st, ledger.Options{Now: now})
	require.NoError(t, err)

	_, err = rec.Receive(ctx, "vault", q("100"), decimal.NewFromInt(200), "")
	require.NoError(t, err)
	_, err = rec.Sell(ctx, "vault", q("40"), decimal.NewFromInt(120), "regular")
	require.NoError(t, err)
	_, err = rec.Move(ctx, "vault", "luke", q("10"), "")
	require.NoError(t, err)

	// WHEN: reopening from the same database
	again, err := ledger.Open(ctx, st, ledger.Options{Now: now})
	require.NoError(t, err)

	// THEN: state and history match
	assert.True(t, again.State().StockAt("vault").Equal(decimal.NewFromInt(50)))
	assert.True(t, again.State().StockAt("luke").Equal(decimal.NewFromInt(10)))
	assert.True(t, again.State().GrossProfit.Equal(decimal.NewFromInt(40)))

	h := again.History()
	require.Len(t, h, 3)
	assert.Equal(t, ledger.KindMove, h[0].Kind())
	assert.Equal(t, ledger.KindSale, h[1].Kind())
	assert.Equal(t, "regular", h[1].Meta().Note)
	assert.Equal(t, ledger.KindReceive, h[2].Kind())

	counts, err := st.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[ledger.Kind]int{ledger.KindReceive: 1, ledger.KindSale: 1, ledger.KindMove: 1}, counts)
}

func TestSQLite_SaveReplacesDocument(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	state := ledger.NewState([]ledger.Location{"vault"}, 2)
	require.NoError(t, st.Save(ctx, ledger.Document{State: state}))

	state.Employees = 7
	require.NoError(t, st.Save(ctx, ledger.Document{State: state}))

	doc, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, doc.State.Employees)
	assert.Empty(t, doc.History)
}

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Save(ctx, ledger.Document{State: ledger.NewState([]ledger.Location{"vault"}, 2)}))

	require.NoError(t, st.Reset(ctx))

	_, err := st.Load(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLite_InMemory(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save(ctx, ledger.Document{State: ledger.NewState([]ledger.Location{"vault"}, 3)}))
	doc, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.State.Employees)
}
