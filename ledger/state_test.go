package ledger_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var locs = []ledger.Location{"vault", "will", "luke"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func emptyState() ledger.State { return ledger.NewState(locs, 2) }

// stocked returns a state holding grams at vault bought at rate $/g.
func stocked(t *testing.T, grams, cost string) ledger.State {
	t.Helper()
	s, _, err := emptyState().Receive("vault", dec(grams), dec(cost), ledger.ZeroCostKeep)
	require.NoError(t, err)
	return s
}

func encoded(t *testing.T, s ledger.State) string {
	t.Helper()
	b, err := ledger.MarshalState(s)
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// RECEIVE
// =============================================================================

func TestReceive_FirstReceiptSetsAverageCost(t *testing.T) {
	s, rec, err := emptyState().Receive("vault", dec("100"), dec("200"), ledger.ZeroCostKeep)
	require.NoError(t, err)

	assertDec(t, "100", s.StockAt("vault"))
	assertDec(t, "2", s.AvgCostPerGram)
	assertDec(t, "200", s.InventoryValue())
	assert.Equal(t, ledger.Location("vault"), rec.Location)
	assertDec(t, "200", rec.Cost)
}

func TestReceive_BlendsWeightedAverage(t *testing.T) {
	// GIVEN: 100 g at $2.00/g
	s := stocked(t, "100", "200")

	// WHEN: receiving 50 g for $75 ($1.50/g)
	next, _, err := s.Receive("will", dec("50"), dec("75"), ledger.ZeroCostKeep)
	require.NoError(t, err)

	// THEN: (200 + 75) / 150 = 1.8333...
	assertDec(t, "150", next.TotalStock())
	assertDec(t, "1.8333", next.AvgCostPerGram.Round(4))
	assert.True(t, next.AvgCostPerGram.GreaterThan(dec("1.5")))
	assert.True(t, next.AvgCostPerGram.LessThan(dec("2")))
	assertDec(t, "275", next.InventoryValue())
}

func TestReceive_KeepsFullPrecisionRate(t *testing.T) {
	s := stocked(t, "100", "200")
	next, _, err := s.Receive("vault", dec("50"), dec("75"), ledger.ZeroCostKeep)
	require.NoError(t, err)

	assert.False(t, next.AvgCostPerGram.Equal(next.AvgCostPerGram.Round(4)),
		"stored rate must not be rounded")
}

func TestReceive_ZeroCostPolicies(t *testing.T) {
	s := stocked(t, "100", "200")

	kept, rec, err := s.Receive("vault", dec("50"), decimal.Zero, ledger.ZeroCostKeep)
	require.NoError(t, err)
	assertDec(t, "2", kept.AvgCostPerGram, "keep leaves the rate alone")
	assert.True(t, rec.Cost.IsZero())

	diluted, _, err := s.Receive("vault", dec("50"), decimal.Zero, ledger.ZeroCostDilute)
	require.NoError(t, err)
	assertDec(t, "1.3333", diluted.AvgCostPerGram.Round(4), "dilute spreads $200 over 150 g")
}

func TestReceive_Rejections(t *testing.T) {
	s := stocked(t, "100", "200")
	before := encoded(t, s)

	tests := []struct {
		name string
		loc  ledger.Location
		qty  string
		cost string
		want error
	}{
		{"zero quantity", "vault", "0", "10", ledger.ErrValidation},
		{"negative quantity", "vault", "-1", "10", ledger.ErrValidation},
		{"negative cost", "vault", "5", "-1", ledger.ErrValidation},
		{"unknown location", "garage", "5", "10", ledger.ErrUnknownLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := s.Receive(tt.loc, dec(tt.qty), dec(tt.cost), ledger.ZeroCostKeep)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ledger.IsClientError(err))
			assert.Equal(t, before, encoded(t, next))
		})
	}
}

// =============================================================================
// SELL
// =============================================================================

func TestSell_RecordsRevenueCostAndProfit(t *testing.T) {
	s := stocked(t, "100", "200")

	next, sale, err := s.Sell("vault", dec("40"), dec("120"))
	require.NoError(t, err)

	assertDec(t, "80", sale.COGS)
	assertDec(t, "40", sale.Profit())
	assertDec(t, "60", next.StockAt("vault"))
	assertDec(t, "120", next.Cash)
	assertDec(t, "120", next.Revenue)
	assertDec(t, "80", next.COGS)
	assertDec(t, "40", next.GrossProfit)
	assertDec(t, "2", next.AvgCostPerGram, "a sale never moves the cost basis")
}

func TestSell_RoundsCOGSToCents(t *testing.T) {
	s := stocked(t, "3", "10") // 3.333.../g
	_, sale, err := s.Sell("vault", dec("1"), dec("5"))
	require.NoError(t, err)
	assertDec(t, "3.33", sale.COGS)
}

func TestSell_ZeroCashIsAWriteOff(t *testing.T) {
	s := stocked(t, "100", "200")
	next, sale, err := s.Sell("vault", dec("10"), decimal.Zero)
	require.NoError(t, err)
	assertDec(t, "-20", sale.Profit())
	assertDec(t, "-20", next.GrossProfit)
	assertDec(t, "0", next.Revenue)
}

func TestSell_InsufficientStock(t *testing.T) {
	// GIVEN: 60 g at vault
	s := stocked(t, "60", "120")
	before := encoded(t, s)

	// WHEN: selling 100 g
	next, _, err := s.Sell("vault", dec("100"), dec("300"))

	// THEN: rejected, shortfall named, state untouched
	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, ledger.Location("vault"), short.Location)
	assertDec(t, "40", short.Shortfall)
	assert.Contains(t, err.Error(), "Vault")
	assert.Equal(t, before, encoded(t, next))
}

func TestSell_FromEmptyLocation(t *testing.T) {
	s := stocked(t, "60", "120")
	_, _, err := s.Sell("luke", dec("1"), dec("1"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

// =============================================================================
// MOVE
// =============================================================================

func TestMove_ConservesMassAndCost(t *testing.T) {
	s := stocked(t, "100", "200")

	next, tr, err := s.Move("vault", "will", dec("20"))
	require.NoError(t, err)

	assertDec(t, "80", next.StockAt("vault"))
	assertDec(t, "20", next.StockAt("will"))
	assertDec(t, "100", next.TotalStock())
	assertDec(t, "2", next.AvgCostPerGram)
	assert.Equal(t, ledger.Location("vault"), tr.From)
	assert.Equal(t, ledger.Location("will"), tr.To)
}

func TestMove_Rejections(t *testing.T) {
	s := stocked(t, "100", "200")

	_, _, err := s.Move("vault", "vault", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = s.Move("vault", "will", dec("0"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = s.Move("will", "vault", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	_, _, err = s.Move("vault", "attic", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrUnknownLocation)
}

// =============================================================================
// ADJUST
// =============================================================================

func TestAdjust_SetsCashAndTeam(t *testing.T) {
	s := emptyState()

	next, adj, err := s.Adjust(dec("-50.005"), 5)
	require.NoError(t, err)

	assertDec(t, "-50.01", next.Cash, "negative cash is allowed and rounded to cents")
	assert.Equal(t, 5, next.Employees)
	assertDec(t, "-50.01", adj.CashDelta)
	assert.Equal(t, 3, adj.EmployeeDelta)
}

func TestAdjust_Rejections(t *testing.T) {
	s := emptyState()

	_, _, err := s.Adjust(decimal.Zero, -1)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = s.Adjust(decimal.Zero, 2)
	assert.ErrorIs(t, err, ledger.ErrNoChanges)
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcile_OverwritesCountsNotCost(t *testing.T) {
	s := stocked(t, "100", "200")
	s, _, _ = s.Move("vault", "will", dec("30"))

	next, rec, err := s.Reconcile(map[ledger.Location]decimal.Decimal{
		"vault": dec("68.5"),
		"will":  dec("30"),
	})
	require.NoError(t, err)

	assertDec(t, "68.5", next.StockAt("vault"))
	assertDec(t, "30", next.StockAt("will"))
	assertDec(t, "2", next.AvgCostPerGram)
	require.Len(t, rec.Deltas, 1, "only changed locations are recorded")
	assertDec(t, "-1.5", rec.Deltas["vault"])
	assert.True(t, rec.Effect().Adjustment)
}

func TestReconcile_NoChanges(t *testing.T) {
	s := stocked(t, "100", "200")
	next, _, err := s.Reconcile(map[ledger.Location]decimal.Decimal{"vault": dec("100.00")})
	assert.ErrorIs(t, err, ledger.ErrNoChanges)
	assert.Equal(t, encoded(t, s), encoded(t, next))
}

func TestReconcile_Rejections(t *testing.T) {
	s := stocked(t, "100", "200")

	_, _, err := s.Reconcile(map[ledger.Location]decimal.Decimal{"vault": dec("-1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = s.Reconcile(map[ledger.Location]decimal.Decimal{"cellar": dec("1")})
	assert.ErrorIs(t, err, ledger.ErrUnknownLocation)
}

// =============================================================================
// DERIVED FIGURES
// =============================================================================

func TestMarginPct(t *testing.T) {
	assertDec(t, "0", emptyState().MarginPct(), "no revenue means no margin")

	s := stocked(t, "100", "200")
	s, _, _ = s.Sell("vault", dec("40"), dec("120"))
	assertDec(t, "33.3", s.MarginPct())
}

func TestUnitConversion(t *testing.T) {
	assertDec(t, "1", ledger.ToDisplay(dec("28.3495"), ledger.UnitOunces))
	assertDec(t, "56.699", ledger.FromDisplay(dec("2"), ledger.UnitOunces))
	assertDec(t, "7", ledger.ToDisplay(dec("7"), ledger.UnitGrams))

	q := ledger.NewQuantity(dec("3.5"), ledger.UnitOunces)
	assertDec(t, "99.22325", q.Grams())
	assert.Equal(t, "3.50 ounces", q.String())

	u, err := ledger.ParseUnit("oz")
	require.NoError(t, err)
	assert.Equal(t, ledger.UnitOunces, u)
	_, err = ledger.ParseUnit("pounds")
	assert.Error(t, err)
}

// =============================================================================
// PROPERTIES - random command sequences
// =============================================================================

func TestInvariants_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := emptyState()

	for i := 0; i < 2000; i++ {
		loc := locs[rng.Intn(len(locs))]
		qty := decimal.NewFromInt(int64(rng.Intn(50))).Add(decimal.New(int64(rng.Intn(100)), -2))
		money := decimal.New(int64(rng.Intn(50000)), -2)

		var next ledger.State
		var err error
		before := s.TotalStock()
		prevAvg := s.AvgCostPerGram
		prevRevenue, prevCOGS := s.Revenue, s.COGS

		switch rng.Intn(4) {
		case 0:
			next, _, err = s.Receive(loc, qty, money, ledger.ZeroCostKeep)
			if err == nil && money.IsPositive() {
				lo, hi := prevAvg, money.Div(qty)
				if lo.GreaterThan(hi) {
					lo, hi = hi, lo
				}
				if !before.IsZero() {
					assert.True(t, next.AvgCostPerGram.GreaterThanOrEqual(lo.Sub(dec("0.000001"))), "step %d", i)
					assert.True(t, next.AvgCostPerGram.LessThanOrEqual(hi.Add(dec("0.000001"))), "step %d", i)
				}
			}
		case 1:
			next, _, err = s.Sell(loc, qty, money)
		case 2:
			to := locs[rng.Intn(len(locs))]
			next, _, err = s.Move(loc, to, qty)
			if err == nil {
				assert.True(t, before.Equal(next.TotalStock()), "move must conserve mass at step %d", i)
			}
		case 3:
			counts := map[ledger.Location]decimal.Decimal{loc: qty}
			next, _, err = s.Reconcile(counts)
		}
		if err != nil {
			if !errors.Is(err, ledger.ErrNoChanges) {
				assert.True(t, ledger.IsClientError(err), "step %d: %v", i, err)
			}
			assert.Equal(t, encoded(t, s), encoded(t, next), "rejected command changed state at step %d", i)
			continue
		}

		for _, l := range locs {
			assert.False(t, next.StockAt(l).IsNegative(), "negative stock at %s step %d", l, i)
		}
		assert.True(t, next.GrossProfit.Equal(next.Revenue.Sub(next.COGS)), "profit identity at step %d", i)
		assert.True(t, next.Revenue.GreaterThanOrEqual(prevRevenue))
		assert.True(t, next.COGS.GreaterThanOrEqual(prevCOGS))
		s = next
	}
}
