package utils

import (
	"strings"
	"testing"
	"time"
)

func TestLastFourAndMask(t *testing.T) {
	if got := LastFour("1234567812345678"); got != "5678" {
		t.Fatalf("LastFour=%q", got)
	}
	if got := MaskNumber("5678"); got != "**** **** **** 5678" {
		t.Fatalf("MaskNumber=%q", got)
	}
}

func TestGenerateCardNumber(t *testing.T) {
	n, err := GenerateCardNumber("400000", 16)
	if err != nil {
		t.Fatal(err)
	}
	if len(n) != 16 || !strings.HasPrefix(n, "400000") {
		t.Fatalf("number=%q", n)
	}
	if luhnCheckDigit(n[:15]) != n[15] {
		t.Fatalf("check digit mismatch for %q", n)
	}
	if _, err := GenerateCardNumber("400000", 6); err == nil {
		t.Fatal("want error for length not exceeding prefix")
	}
}

func TestLuhnCheckDigit(t *testing.T) {
	// 4111 1111 1111 1111 is a well known valid test number
	if d := luhnCheckDigit("411111111111111"); d != '1' {
		t.Fatalf("check digit=%c want=1", d)
	}
}

func TestDefaultExpiry(t *testing.T) {
	y, m := DefaultExpiry(time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC))
	if y != 2029 || m != 10 {
		t.Fatalf("expiry=%d/%d", m, y)
	}
}
