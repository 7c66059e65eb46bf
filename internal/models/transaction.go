package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer is a committed movement of funds between two cards of one owner
type Transfer struct {
	ID         uuid.UUID       `json:"id"`
	UserID     int64           `json:"userId"`
	FromCardID uuid.UUID       `json:"fromCardId"`
	ToCardID   uuid.UUID       `json:"toCardId"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// TransferRequest asks to move Amount from FromCardID to ToCardID.
// UserID is the acting party named by the caller; zero means the actor itself.
type TransferRequest struct {
	UserID     int64
	FromCardID uuid.UUID
	ToCardID   uuid.UUID
	Amount     decimal.Decimal
}
