package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Dan9191/bank-cards/internal/models"
)

var (
	// ErrNotFound is returned when a looked up row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row lock could not be acquired in time
	// or a concurrent write was detected. The operation may be retried.
	ErrConflict = errors.New("concurrent modification")
	// ErrDuplicate is returned when a unique constraint is violated
	ErrDuplicate = errors.New("duplicate key")
	// ErrInvalidSort is returned for a sort key that is not allowed
	ErrInvalidSort = errors.New("invalid sort key")
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByFullName(ctx context.Context, fullName string) (*models.User, error)
	ListUsers(ctx context.Context, page models.PageRequest) ([]models.User, int64, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// DeleteUser removes the user and every card they own
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int64, error)
}

// TransferFunc validates and stages a transfer on locked copies of both cards.
// from and to are the same pointer when both ids are equal. Returning an
// error aborts the unit of work with no change persisted.
type TransferFunc func(from, to *models.Card) (*models.Transfer, error)

type CardRepository interface {
	CreateCard(ctx context.Context, card *models.Card) error
	GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error)
	ListCardsByOwner(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int64, error)
	ListCards(ctx context.Context, page models.PageRequest) ([]models.Card, int64, error)
	UpdateCardStatus(ctx context.Context, id uuid.UUID, status models.CardStatus) error
	DeleteCard(ctx context.Context, id uuid.UUID) error

	// Transfer acquires exclusive locks on both cards in ascending id order,
	// bounded by the store's lock timeout, and passes the locked rows to fn.
	// When fn succeeds the balances of both cards and the returned transfer
	// record are persisted as one atomic unit.
	Transfer(ctx context.Context, fromID, toID uuid.UUID, fn TransferFunc) error
	ListTransfersByCard(ctx context.Context, cardID uuid.UUID, page models.PageRequest) ([]models.Transfer, int64, error)
}

// Store is the full persistence surface used by the services
type Store interface {
	UserRepository
	CardRepository
}

// LockOrder returns a and b ordered so every caller locks the same pair of
// rows in the same sequence
func LockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if CompareIDs(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// CompareIDs orders card ids by their byte representation, which matches
// PostgreSQL's ordering of the uuid type
func CompareIDs(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
