package ledger

import "strings"

// Amount helpers (2 decimals). Amounts travel as decimal strings and are
// only converted to integer cents for arithmetic and comparison.

// ParseAmount converts a decimal string like "25.5" into cents.
// An empty string is not an amount; the caller decides what absence means.
func ParseAmount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return 0, false
	}

	// Pad or trim to 2 decimals
	for len(frac) < 2 {
		frac += "0"
	}
	frac = frac[:2]

	var cents int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, false
		}
		cents = cents*10 + int64(r-'0')
	}
	if neg {
		cents = -cents
	}
	return cents, true
}

// FormatAmount renders cents as a two-decimal string, e.g. 2550 -> "25.50".
func FormatAmount(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := ""
	whole := cents / 100
	frac := cents % 100
	s = itoa(whole) + "." + pad2(frac)
	if neg {
		s = "-" + s
	}
	return s
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + itoa(n)
	}
	return itoa(n)
}
