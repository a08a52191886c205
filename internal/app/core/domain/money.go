package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// amount 使用 int64 儲存最小單位，精度：小數點後 2 位
const (
	CurrencyScale  = 100
	currencyDigits = 2
)

// MaxBalance 帳戶餘額上限
const MaxBalance int64 = math.MaxInt64

var maxAmount = decimal.NewFromInt(math.MaxInt64).Shift(-currencyDigits)

// ParseAmount 把主單位金額 (例如 12.34) 轉成最小單位 (1234)
// 非正數、超過兩位小數或超出範圍都回傳 ErrInvalidAmount
func ParseAmount(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	return toMinorUnits(amount)
}

// ParseBalance 同 ParseAmount，但允許 0 (開戶餘額)
func ParseBalance(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidAmount, amount)
	}
	return toMinorUnits(amount)
}

func toMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, amount)
	}
	minor := amount.Shift(currencyDigits)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, currencyDigits)
	}
	return minor.IntPart(), nil
}

// FormatAmount 把最小單位轉回主單位
func FormatAmount(minor int64) decimal.Decimal {
	return decimal.New(minor, -currencyDigits)
}
