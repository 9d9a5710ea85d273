package sales

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeLineDiscountBeforeTax(t *testing.T) {
	amounts := ComputeLine(LineInput{Quantity: 2, UnitPrice: 10, DiscountPercent: 10, TaxPercent: 5})
	require.Equal(t, 20.0, amounts.LineTotal)
	require.Equal(t, 2.0, amounts.DiscountAmount)
	require.Equal(t, 18.0, amounts.TaxableAmount)
	require.InDelta(t, 0.9, amounts.TaxAmount, 1e-9)
}

func TestComputeTotalsTwoLines(t *testing.T) {
	totals := ComputeTotals([]LineInput{
		{Quantity: 2, UnitPrice: 10, DiscountPercent: 10, TaxPercent: 5},
		{Quantity: 1, UnitPrice: 100},
	})
	require.Equal(t, 120.0, totals.Subtotal)
	require.Equal(t, 2.0, totals.DiscountAmount)
	require.InDelta(t, 0.9, totals.TaxAmount, 1e-9)
	require.InDelta(t, 118.9, totals.TotalAmount, 1e-9)
}

func TestComputeTotalsZeroAndFreeLines(t *testing.T) {
	totals := ComputeTotals([]LineInput{
		{Quantity: 3, UnitPrice: 0, DiscountPercent: 50, TaxPercent: 17},
		{Quantity: 1, UnitPrice: 40, DiscountPercent: 100, TaxPercent: 17},
	})
	require.Equal(t, 40.0, totals.Subtotal)
	require.Equal(t, 40.0, totals.DiscountAmount)
	require.Zero(t, totals.TaxAmount)
	require.Zero(t, totals.TotalAmount)
}

func TestComputeTotalsOrderIndependent(t *testing.T) {
	lines := []LineInput{
		{Quantity: 3, UnitPrice: 19.99, DiscountPercent: 5, TaxPercent: 17},
		{Quantity: 12, UnitPrice: 1.25, TaxPercent: 17},
		{Quantity: 1, UnitPrice: 450, DiscountPercent: 12.5, TaxPercent: 17},
		{Quantity: 7, UnitPrice: 0.33},
	}
	want := ComputeTotals(lines)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]LineInput, len(lines))
		copy(shuffled, lines)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := ComputeTotals(shuffled)
		require.LessOrEqual(t, math.Abs(got.TotalAmount-want.TotalAmount), 1e-9)
		require.LessOrEqual(t, math.Abs(got.Subtotal-want.Subtotal), 1e-9)
	}
}
