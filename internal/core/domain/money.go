package domain

import "fmt"

// Money is carried as int64 minor units end to end. Signs live in the
// transaction direction, never in the amount.

// ValidAmount reports whether an amount in minor units can move money.
// Zero and negative amounts are rejected everywhere.
func ValidAmount(amount int64) bool {
	return amount > 0
}

// FormatAmount renders minor units as a decimal string for logs and
// human-facing output only; it never feeds back into arithmetic.
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
