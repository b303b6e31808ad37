package util

import (
	"os"
	"testing"
)

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+970599123456"); got != "+97059912****" {
		t.Errorf("unexpected mask: %s", got)
	}
	if got := MaskPhone("123"); got != "****" {
		t.Errorf("short numbers should be fully masked, got %s", got)
	}
}

func TestCanonicalPhone(t *testing.T) {
	cases := map[string]string{
		"+970 (599) 123-456":    "+970599123456",
		"00970599123456":        "+970599123456",
		"0599123456":            "0599123456",
		"whatsapp:+15551234567": "+15551234567",
		"abc":                   "",
	}
	for in, want := range cases {
		if got := CanonicalPhone(in); got != want {
			t.Errorf("CanonicalPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("SAFEBIRTH_TEST_BOOL", "yes")
	if !ParseBoolEnv("SAFEBIRTH_TEST_BOOL", false) {
		t.Error("expected true for 'yes'")
	}
	t.Setenv("SAFEBIRTH_TEST_BOOL", "maybe")
	if ParseBoolEnv("SAFEBIRTH_TEST_BOOL", false) {
		t.Error("expected default for invalid value")
	}
	os.Unsetenv("SAFEBIRTH_TEST_BOOL")
	if !ParseBoolEnv("SAFEBIRTH_TEST_BOOL", true) {
		t.Error("expected default when unset")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SAFEBIRTH_TEST_INT", "15")
	if got := ParseIntEnv("SAFEBIRTH_TEST_INT", 30); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	t.Setenv("SAFEBIRTH_TEST_INT", "-2")
	if got := ParseIntEnv("SAFEBIRTH_TEST_INT", 30); got != 30 {
		t.Errorf("expected default for negative value, got %d", got)
	}
}
