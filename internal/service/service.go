// Package service holds the card lifecycle, transfer and user management logic.
// Every operation takes the acting principal explicitly and checks it with
// the policy package before touching state.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCardNotFound       = errors.New("card not found")
	ErrForbidden          = errors.New("access denied")
	ErrInvalidAmount      = errors.New("transfer amount must be positive")
	ErrInvalidState       = errors.New("both cards must be active")
	ErrInvalidCard        = errors.New("invalid card data")
	ErrInsufficientFunds  = errors.New("insufficient funds on source card")
	ErrConflict           = errors.New("card is being modified concurrently, retry later")
	ErrDuplicateUsername  = errors.New("username already in use")
	ErrSameCard           = errors.New("source and destination card must differ")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPage        = errors.New("invalid page request")
)

var ruleViolations = []error{
	ErrUserNotFound, ErrCardNotFound, ErrForbidden, ErrInvalidAmount, ErrInvalidState,
	ErrInvalidCard, ErrInsufficientFunds, ErrConflict, ErrDuplicateUsername, ErrSameCard,
	ErrInvalidCredentials, ErrInvalidPage,
}

// IsRuleViolation reports whether err is an expected business or authorization
// failure rather than an internal fault
func IsRuleViolation(err error) bool {
	for _, target := range ruleViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Notifier reports noteworthy ledger events to administrators
type Notifier interface {
	CardDeleted(ctx context.Context, card models.Card) error
}

// NopNotifier drops every notification
type NopNotifier struct{}

func (NopNotifier) CardDeleted(context.Context, models.Card) error { return nil }

// toView maps a stored card to its masked representation
func toView(c *models.Card) *models.CardView {
	return &models.CardView{
		ID:            c.ID,
		MaskedNumber:  utils.MaskNumber(c.Last4),
		OwnerFullName: c.OwnerFullName,
		ExpiryYear:    c.ExpiryYear,
		ExpiryMonth:   c.ExpiryMonth,
		Status:        c.Status,
		Balance:       c.Balance,
	}
}

func toViews(cards []models.Card) []models.CardView {
	views := make([]models.CardView, 0, len(cards))
	for i := range cards {
		views = append(views, *toView(&cards[i]))
	}
	return views
}

// storeErr translates repository errors into service errors
func storeErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrInvalidSort):
		return fmt.Errorf("%w: %v", ErrInvalidPage, err)
	default:
		return err
	}
}
