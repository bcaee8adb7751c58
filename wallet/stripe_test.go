package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"0", 0},
		{"1", 100},
		{"12.34", 1234},
		{"0.01", 1},
		{"99.999", 10000}, // округление до цента
		{"250.50", 25050},
	}
	for _, tc := range cases {
		amount, err := decimal.NewFromString(tc.amount)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, toMinorUnits(amount), "amount %s", tc.amount)
	}
}
