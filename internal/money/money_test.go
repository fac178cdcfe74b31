package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSum(t *testing.T, amounts ...Cents) Cents {
	t.Helper()
	total, err := Sum(amounts...)
	require.NoError(t, err)
	return total
}

func TestTimesAndSum(t *testing.T) {
	line1, err := Cents(2500).Times(2)
	require.NoError(t, err)
	line2, err := Cents(1999).Times(3)
	require.NoError(t, err)

	assert.Equal(t, Cents(5000), line1)
	assert.Equal(t, Cents(5997), line2)
	assert.Equal(t, mustSum(t, line1, line2), mustSum(t, line2, line1))
	assert.Equal(t, Cents(10997), mustSum(t, line1, line2))
	assert.Equal(t, Cents(0), mustSum(t))
}

func TestTimes_Overflow(t *testing.T) {
	_, err := Cents(2500).Times(math.MaxInt64 / 1000)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Cents(math.MinInt64).Times(-1)
	assert.ErrorIs(t, err, ErrOverflow)

	c, err := Cents(math.MaxInt64).Times(1)
	require.NoError(t, err)
	assert.Equal(t, Cents(math.MaxInt64), c)

	c, err = Cents(math.MaxInt64).Times(0)
	require.NoError(t, err)
	assert.Equal(t, Cents(0), c)
}

func TestSum_Overflow(t *testing.T) {
	_, err := Sum(Cents(math.MaxInt64), 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Sum(Cents(math.MaxInt64/2+1), Cents(math.MaxInt64/2+1))
	assert.ErrorIs(t, err, ErrOverflow)

	assert.Equal(t, Cents(math.MaxInt64), mustSum(t, Cents(math.MaxInt64-1), 1))
}

func TestSum_NoDriftOverManyAdds(t *testing.T) {
	// 0.10 added a thousand times drifts in binary floating point
	amounts := make([]Cents, 1000)
	for i := range amounts {
		amounts[i] = 10
	}
	total := mustSum(t, amounts...)
	assert.Equal(t, Cents(10000), total)
	assert.Equal(t, "100.00", total.String())
}

func TestString(t *testing.T) {
	tests := []struct {
		in   Cents
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{2500, "25.00"},
		{123456, "1234.56"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("19.99")
	require.NoError(t, err)
	assert.Equal(t, Cents(1999), c)

	c, err = Parse("25")
	require.NoError(t, err)
	assert.Equal(t, Cents(2500), c)

	_, err = Parse("1.999")
	assert.Error(t, err)

	_, err = Parse("-1.00")
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = Parse("abc")
	assert.Error(t, err)
}
