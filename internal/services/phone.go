package services

import "strings"

const phoneDigits = 11

// NormalizePhone reduces free-form phone text to its canonical 11-digit
// form. Every non-digit is dropped; the remainder must be exactly 11 digits
// starting with 1.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) != phoneDigits || digits[0] != '1' {
		return "", false
	}
	return digits, true
}

// maskPhone hides the middle of a phone number for log messages.
func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "***"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
