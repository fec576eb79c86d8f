package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func snap(id int64, name, price string, stock int, active bool) ProductSnapshot {
	return ProductSnapshot{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: active,
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// charged + change must equal the payment exactly, for every allocation
func requireBalanced(t *testing.T, a Allocation, payment decimal.Decimal) {
	t.Helper()
	charged := decimal.Zero
	for _, l := range a.Lines {
		charged = charged.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	require.True(t, charged.Add(a.Change).Equal(payment),
		"charged %s + change %s != payment %s", charged, a.Change, payment)
}

func TestAllocateFullSuccess(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Coffee", "10.00", 5, true), Quantity: 3},
	}
	a, err := Allocate(lines, money("30.00"))
	require.NoError(t, err)

	require.False(t, a.Partial)
	require.Empty(t, a.Note)
	require.Len(t, a.Lines, 1)
	require.Equal(t, 3, a.Lines[0].Quantity)
	require.True(t, a.Change.Equal(money("0.00")))
	require.True(t, a.Total.Equal(money("30.00")))
	requireBalanced(t, a, money("30.00"))
}

func TestAllocateStockClamp(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Coffee", "10.00", 2, true), Quantity: 5},
	}
	a, err := Allocate(lines, money("100.00"))
	require.NoError(t, err)

	require.True(t, a.Partial)
	require.Len(t, a.Lines, 1)
	require.Equal(t, 2, a.Lines[0].Quantity)
	require.True(t, a.Change.Equal(money("80.00")))
	require.Contains(t, a.Note, "2")
	require.Contains(t, a.Note, "Coffee")
	requireBalanced(t, a, money("100.00"))
}

func TestAllocateBudgetShortfallDoesNotShortCircuit(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "P1", "10.00", 10, true), Quantity: 2},
		{Product: snap(2, "P2", "5.00", 10, true), Quantity: 2},
	}
	a, err := Allocate(lines, money("15.00"))
	require.NoError(t, err)

	require.True(t, a.Partial)
	require.Len(t, a.Lines, 2)
	require.Equal(t, int64(1), a.Lines[0].ProductID)
	require.Equal(t, 1, a.Lines[0].Quantity) // floor(15/10)
	require.Equal(t, int64(2), a.Lines[1].ProductID)
	require.Equal(t, 1, a.Lines[1].Quantity) // floor(5/5)
	require.True(t, a.Change.Equal(money("0.00")))
	requireBalanced(t, a, money("15.00"))
}

func TestAllocateUnaffordableLineContributesNothing(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Expensive", "100.00", 10, true), Quantity: 1},
		{Product: snap(2, "Cheap", "3.00", 10, true), Quantity: 2},
	}
	a, err := Allocate(lines, money("7.00"))
	require.NoError(t, err)

	// expensive line yields 0 units and no accepted line; the cheap line
	// is still evaluated against the full remaining budget
	require.Len(t, a.Lines, 1)
	require.Equal(t, int64(2), a.Lines[0].ProductID)
	require.Equal(t, 2, a.Lines[0].Quantity)
	require.True(t, a.Change.Equal(money("1.00")))
	requireBalanced(t, a, money("7.00"))
}

func TestAllocateInactiveProductFailsWholeRequest(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Live", "10.00", 5, true), Quantity: 1},
		{Product: snap(2, "Dead", "10.00", 5, false), Quantity: 1},
	}
	_, err := Allocate(lines, money("100.00"))
	require.ErrorIs(t, err, ErrProductUnavailable)
	require.Contains(t, err.Error(), "Dead")
}

func TestAllocateInvalidQuantityFailsWholeRequest(t *testing.T) {
	for _, qty := range []int{0, -1} {
		lines := []LineRequest{
			{Product: snap(1, "Coffee", "10.00", 5, true), Quantity: qty},
		}
		_, err := Allocate(lines, money("100.00"))
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestAllocateEmptyBasket(t *testing.T) {
	_, err := Allocate(nil, money("10.00"))
	require.ErrorIs(t, err, ErrEmptyBasket)
}

func TestAllocateClampThenBudget(t *testing.T) {
	// clamp happens first, so the budget is applied to the clamped qty
	lines := []LineRequest{
		{Product: snap(1, "Tea", "4.00", 3, true), Quantity: 10},
	}
	a, err := Allocate(lines, money("8.00"))
	require.NoError(t, err)

	require.True(t, a.Partial)
	require.Len(t, a.Lines, 1)
	// clamped to 3, budget affords floor(8/4)=2
	require.Equal(t, 2, a.Lines[0].Quantity)
	require.True(t, a.Change.Equal(money("0.00")))
	require.True(t, a.Total.Equal(money("12.00"))) // cost at clamped qty
	requireBalanced(t, a, money("8.00"))
}

func TestAllocateNothingAffordable(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Coffee", "10.00", 5, true), Quantity: 1},
	}
	a, err := Allocate(lines, money("9.99"))
	require.NoError(t, err)

	require.Empty(t, a.Lines)
	require.True(t, a.Partial)
	require.True(t, a.Change.Equal(money("9.99")))
}

func TestAllocateCentPrecision(t *testing.T) {
	lines := []LineRequest{
		{Product: snap(1, "Gum", "0.70", 100, true), Quantity: 10},
	}
	a, err := Allocate(lines, money("5.03"))
	require.NoError(t, err)

	require.Len(t, a.Lines, 1)
	require.Equal(t, 7, a.Lines[0].Quantity) // floor(5.03/0.70)
	require.True(t, a.Change.Equal(money("0.13")))
	require.Equal(t, "0.13", a.Change.StringFixed(2))
	requireBalanced(t, a, money("5.03"))
}

func TestAllocateAcceptsAtMostRequestedAndStock(t *testing.T) {
	cases := []struct {
		stock, requested int
	}{
		{5, 3}, {3, 5}, {0, 4}, {7, 7},
	}
	for _, c := range cases {
		lines := []LineRequest{
			{Product: snap(1, "X", "1.00", c.stock, true), Quantity: c.requested},
		}
		a, err := Allocate(lines, money("1000.00"))
		require.NoError(t, err)
		for _, l := range a.Lines {
			require.LessOrEqual(t, l.Quantity, c.requested)
			require.LessOrEqual(t, l.Quantity, c.stock)
		}
		requireBalanced(t, a, money("1000.00"))
	}
}
