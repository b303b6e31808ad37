package util

import "strings"

// MaskPhone hides the last four characters of a phone number for logging.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:len(phone)-4] + "****"
}

// CanonicalPhone strips formatting from a phone number. A leading "+" or "00"
// international prefix is kept as "+"; every other non-digit is dropped.
// It returns "" when no digits remain.
func CanonicalPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "whatsapp:")
	international := strings.HasPrefix(phone, "+") || strings.HasPrefix(phone, "00")
	if strings.HasPrefix(phone, "00") {
		phone = phone[2:]
	}

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	if international {
		return "+" + b.String()
	}
	return b.String()
}
