package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmountDue(t *testing.T) {
	m := AmountDue(500)
	assert.True(t, decimal.NewFromInt(500).Equal(m.Amount))
	assert.Equal(t, PointsCurrency, m.Currency)
	assert.Equal(t, "500.00 COP", m.String())
}

func TestNormalizeUniID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "AB-123", want: "AB-123", ok: true},
		{in: " ab-123 ", want: "AB-123", ok: true},
		{in: "ABC-123", want: "ABC-123", ok: false},
		{in: "AB-12", want: "AB-12", ok: false},
		{in: "", want: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := NormalizeUniID(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestValidPoints(t *testing.T) {
	assert.False(t, ValidPoints(0))
	assert.True(t, ValidPoints(1))
	assert.True(t, ValidPoints(10000))
	assert.False(t, ValidPoints(10001))
	assert.False(t, ValidPoints(-5))
}

func TestErrorClassification(t *testing.T) {
	limitErr := &LimitExceededError{Window: "daily", DailyRemaining: 50, MonthlyRemaining: 9000}
	wrappedLimit := fmt.Errorf("reserve: %w", limitErr)

	assert.True(t, errors.Is(wrappedLimit, ErrLimitExceeded))
	assert.Equal(t, KindBusinessRule, KindOf(wrappedLimit))
	assert.Equal(t, "limit_exceeded", CodeOf(wrappedLimit))

	var target *LimitExceededError
	assert.True(t, errors.As(wrappedLimit, &target))
	assert.Equal(t, int64(50), target.DailyRemaining)

	v := Validationf("description too long")
	assert.True(t, errors.Is(v, ErrValidation))
	assert.Equal(t, KindValidation, KindOf(v))
	assert.Equal(t, "description too long", v.Error())

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("tx: %w", ErrPersistenceConflict)))
}
