package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const maskPrefix = "**** **** **** "

// LastFour returns the display fragment of a card number
func LastFour(plainNumber string) string {
	if len(plainNumber) < 4 {
		return plainNumber
	}
	return plainNumber[len(plainNumber)-4:]
}

// MaskNumber renders a stored display fragment as a masked card number
func MaskNumber(last4 string) string {
	return maskPrefix + last4
}

// GenerateCardNumber generates a card number with the specified prefix and length.
// The final digit is a Luhn check digit.
func GenerateCardNumber(prefix string, length int) (string, error) {
	if length <= len(prefix) || length > 19 {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}

	// Generate random digits
	digits := make([]byte, length-len(prefix)-1)
	if _, err := rand.Read(digits); err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		builder.WriteByte(b%10 + '0')
	}
	builder.WriteByte(luhnCheckDigit(builder.String()))

	cardNumber := builder.String()
	if len(cardNumber) != length {
		return "", fmt.Errorf("generated card number has incorrect length: got %d, want %d", len(cardNumber), length)
	}

	return cardNumber, nil
}

// luhnCheckDigit computes the digit that makes partial+digit pass the Luhn check
func luhnCheckDigit(partial string) byte {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte((10-sum%10)%10) + '0'
}

// DefaultExpiry returns the expiry year and month of a card issued at now (valid for 3 years)
func DefaultExpiry(now time.Time) (int, int) {
	return now.Year() + 3, int(now.Month())
}
