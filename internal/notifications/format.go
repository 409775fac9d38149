package notifications

import (
	"strconv"
	"strings"
)

// CurrencySymbol is appended to every rendered price.
const CurrencySymbol = "¥"

// FormatPrice renders an amount in the smallest unit with thousands
// separators, e.g. 1234 → "1,234 ¥".
func FormatPrice(amount int64) string {
	return groupThousands(amount) + " " + CurrencySymbol
}

func groupThousands(n int64) string {
	negative := n < 0
	digits := strconv.FormatInt(n, 10)
	if negative {
		digits = digits[1:]
	}
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
