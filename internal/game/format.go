/*
Package game
File: format.go
Description:
    Money formatting for tables and logs.
*/

package game

import "fmt"

// FormatMoney renders an amount the way the client displays it:
// two decimals with a K/M/B/T suffix above a thousand.
func FormatMoney(amount float64) string {
	switch {
	case amount >= 1e12:
		return fmt.Sprintf("$%.2fT", amount/1e12)
	case amount >= 1e9:
		return fmt.Sprintf("$%.2fB", amount/1e9)
	case amount >= 1e6:
		return fmt.Sprintf("$%.2fM", amount/1e6)
	case amount >= 1e3:
		return fmt.Sprintf("$%.2fK", amount/1e3)
	}
	return fmt.Sprintf("$%.2f", amount)
}
