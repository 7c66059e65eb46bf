package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardStatus is the persisted state of a card
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
)

// Valid reports whether s can be persisted
func (s CardStatus) Valid() bool {
	return s == CardStatusActive || s == CardStatusBlocked
}

// Card represents a bank card row. NumberEncrypted never leaves the service layer.
type Card struct {
	ID              uuid.UUID
	NumberEncrypted string
	Last4           string
	ExpiryYear      int
	ExpiryMonth     int
	Status          CardStatus
	Balance         decimal.Decimal
	OwnerID         int64
	OwnerFullName   string // Joined from users
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpired reports whether the card is past the end of its expiry month at now
func (c *Card) IsExpired(now time.Time) bool {
	y, m := now.Year(), int(now.Month())
	return c.ExpiryYear < y || (c.ExpiryYear == y && c.ExpiryMonth < m)
}

// CardRequest carries the fields for issuing a card
type CardRequest struct {
	PlainNumber    string           `json:"plainNumber"`
	ExpiryYear     *int             `json:"expiryYear"`
	ExpiryMonth    *int             `json:"expiryMonth"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

// CardView is the masked card representation returned to API clients
type CardView struct {
	ID            uuid.UUID       `json:"id"`
	MaskedNumber  string          `json:"maskedNumber"`
	OwnerFullName string          `json:"ownerFullName"`
	ExpiryYear    int             `json:"expiryYear"`
	ExpiryMonth   int             `json:"expiryMonth"`
	Status        CardStatus      `json:"cardStatus"`
	Balance       decimal.Decimal `json:"balance"`
}
