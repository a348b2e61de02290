package regions

import "strings"

// NormalizeNumber keeps the digits of a phone number and drops the NANP
// country code from 11-digit numbers starting with 1.
func NormalizeNumber(s string) string {
	d := digitsOnly(s)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func validPrefix(p string) bool {
	return p != "" && digitsOnly(p) == p
}

// longestPrefix returns the range with the longest prefix of digits.
func longestPrefix(ranges []NumberRange, digits string) (NumberRange, bool) {
	var (
		best  NumberRange
		found bool
	)
	for _, nr := range ranges {
		if !strings.HasPrefix(digits, nr.Prefix) {
			continue
		}
		if !found || len(nr.Prefix) > len(best.Prefix) {
			best, found = nr, true
		}
	}
	return best, found
}
