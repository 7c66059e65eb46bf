package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
)

const defaultRetryBackoff = 20 * time.Millisecond

// TransferService moves funds between two cards of the same owner
type TransferService struct {
	cards   repository.CardRepository
	log     *logrus.Logger
	retries int
	backoff time.Duration
	now     func() time.Time
}

// NewTransferService initializes the transfer engine. A transfer that hits a
// lock conflict is restarted from validation up to retries more times.
func NewTransferService(cards repository.CardRepository, log *logrus.Logger, retries int) *TransferService {
	return &TransferService{
		cards:   cards,
		log:     log,
		retries: retries,
		backoff: defaultRetryBackoff,
		now:     time.Now,
	}
}

// RoundAmount normalizes a monetary value to 2 fractional digits, rounding half up
func RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Transfer debits req.FromCardID and credits req.ToCardID by the rounded amount.
// Checks run in order: amount, card existence, ownership, card status, funds.
// Transfers to the same card are rejected with ErrSameCard once ownership is established.
func (s *TransferService) Transfer(ctx context.Context, actor models.Actor, req models.TransferRequest) (*models.Transfer, error) {
	amount := RoundAmount(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acting := req.UserID
	if acting == 0 {
		acting = actor.ID
	}

	fields := logrus.Fields{
		"user_id":      acting,
		"from_card_id": req.FromCardID,
		"to_card_id":   req.ToCardID,
		"amount":       amount.StringFixed(2),
	}

	for attempt := 0; ; attempt++ {
		transfer, err := s.attempt(ctx, actor, acting, req.FromCardID, req.ToCardID, amount)
		if err == nil {
			s.log.WithFields(fields).Info("Transfer completed")
			return transfer, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.retries {
			entry := s.log.WithFields(fields).WithError(err)
			if IsRuleViolation(err) {
				entry.Info("Transfer rejected")
			} else {
				entry.Error("Transfer failed")
			}
			return nil, err
		}

		s.log.WithFields(fields).WithField("attempt", attempt+1).Debug("Transfer conflicted, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrConflict, ctx.Err())
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
}

func (s *TransferService) attempt(ctx context.Context, actor models.Actor, acting int64, fromID, toID uuid.UUID, amount decimal.Decimal) (*models.Transfer, error) {
	var committed *models.Transfer
	err := s.cards.Transfer(ctx, fromID, toID, func(from, to *models.Card) (*models.Transfer, error) {
		if policy.Authorize(actor, policy.ActionTransfer, policy.TransferResource(acting, from, to)) == policy.Deny {
			return nil, fmt.Errorf("%w: you can transfer only between your own cards", ErrForbidden)
		}
		if from.ID == to.ID {
			return nil, ErrSameCard
		}
		if from.Status != models.CardStatusActive || to.Status != models.CardStatusActive {
			return nil, ErrInvalidState
		}
		if from.Balance.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)

		committed = &models.Transfer{
			ID:         uuid.New(),
			UserID:     acting,
			FromCardID: from.ID,
			ToCardID:   to.ID,
			Amount:     amount,
			CreatedAt:  s.now().UTC(),
		}
		return committed, nil
	})
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	return committed, nil
}
