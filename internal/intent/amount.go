package intent

import (
	"strconv"
	"strings"
)

// FormatAmount converts base units into a decimal string using the token's
// on-chain decimals. Trailing zero fraction digits are stripped, and a pure
// integer amount renders without a decimal point.
func FormatAmount(baseUnits uint64, decimals uint8) string {
	digits := strconv.FormatUint(baseUnits, 10)
	if decimals == 0 {
		return digits
	}

	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-d]
	frac := strings.TrimRight(digits[len(digits)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
