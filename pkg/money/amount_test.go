package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound_HalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.745", "0.75"},
		{"0.744", "0.74"},
		{"1.005", "1.01"},
		{"-0.745", "-0.75"},
		{"100", "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestParse_Valid(t *testing.T) {
	d, err := Parse(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))
}

func TestParse_TrailingZerosAllowed(t *testing.T) {
	d, err := Parse("3.1000")
	require.NoError(t, err)
	assert.Equal(t, "3.10", Format(d))
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "abc", "1.234"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestPercent(t *testing.T) {
	got := Percent(MustParse("50.00"), MustParse("1.5"))
	assert.Equal(t, "0.75", Format(got))
}

func TestChangePercent(t *testing.T) {
	assert.Equal(t, "10", ChangePercent(MustParse("100"), MustParse("110")).String())
	assert.True(t, ChangePercent(decimal.Zero, MustParse("5")).IsZero())
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("x") })
}
