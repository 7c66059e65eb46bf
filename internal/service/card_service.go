package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const cardNumberLength = 16

// CardService manages card issuance, status, deletion and masked reads
type CardService struct {
	cards   repository.CardRepository
	users   repository.UserRepository
	codec   *utils.Codec
	notify  Notifier
	log     *logrus.Logger
	cardBIN string
	now     func() time.Time
}

// NewCardService initializes a new card service. codec must be the process-wide
// codec built at startup.
func NewCardService(cards repository.CardRepository, users repository.UserRepository, codec *utils.Codec, notify Notifier, log *logrus.Logger, cardBIN string) *CardService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &CardService{
		cards:   cards,
		users:   users,
		codec:   codec,
		notify:  notify,
		log:     log,
		cardBIN: cardBIN,
		now:     time.Now,
	}
}

// CreateCard issues an ACTIVE card for ownerID
func (s *CardService) CreateCard(ctx context.Context, actor models.Actor, ownerID int64, req models.CardRequest) (*models.CardView, error) {
	if policy.Authorize(actor, policy.ActionCreateCard, policy.Resource{OwnerID: ownerID}) == policy.Deny {
		return nil, fmt.Errorf("%w: only admin can create cards", ErrForbidden)
	}

	owner, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	plain := req.PlainNumber
	if plain == "" {
		if plain, err = utils.GenerateCardNumber(s.cardBIN, cardNumberLength); err != nil {
			return nil, fmt.Errorf("failed to generate card number: %w", err)
		}
	}
	if len(plain) < 4 {
		return nil, fmt.Errorf("%w: card number too short", ErrInvalidCard)
	}

	year, month := utils.DefaultExpiry(s.now())
	if req.ExpiryYear != nil {
		year = *req.ExpiryYear
	}
	if req.ExpiryMonth != nil {
		month = *req.ExpiryMonth
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: expiry month %d", ErrInvalidCard, month)
	}

	balance := decimal.Zero
	if req.InitialBalance != nil {
		balance = req.InitialBalance.Round(2)
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidCard)
	}

	encrypted, err := s.codec.Encrypt(plain)
	if err != nil {
		s.log.WithError(err).WithField("user_id", ownerID).Error("Failed to encrypt card number")
		return nil, err
	}

	card := &models.Card{
		ID:              uuid.New(),
		NumberEncrypted: encrypted,
		Last4:           utils.LastFour(plain),
		ExpiryYear:      year,
		ExpiryMonth:     month,
		Status:          models.CardStatusActive,
		Balance:         balance,
		OwnerID:         owner.ID,
		OwnerFullName:   owner.FullName,
	}
	if err := s.cards.CreateCard(ctx, card); err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": owner.ID}).Info("Card created")
	return toView(card), nil
}

// GetCard returns the masked card if actor is an admin or its owner
func (s *CardService) GetCard(ctx context.Context, actor models.Actor, cardID uuid.UUID) (*models.CardView, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	if policy.Authorize(actor, policy.ActionReadCard, policy.Resource{OwnerID: card.OwnerID}) == policy.Deny {
		return nil, fmt.Errorf("%w: card doesn't belong to you", ErrForbidden)
	}

	s.log.WithField("card_id", cardID).Debug("Card retrieved")
	return toView(card), nil
}

// ListUserCards returns one page of ownerID's cards
func (s *CardService) ListUserCards(ctx context.Context, actor models.Actor, ownerID int64, page models.PageRequest) (*models.Page[models.CardView], error) {
	if policy.Authorize(actor, policy.ActionListCards, policy.Resource{OwnerID: ownerID}) == policy.Deny {
		return nil, ErrForbidden
	}
	if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	page = page.Normalize()
	cards, total, err := s.cards.ListCardsByOwner(ctx, ownerID, page)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	s.log.WithField("user_id", ownerID).Debug("Page of cards retrieved")
	result := models.NewPage(toViews(cards), page, total)
	return &result, nil
}

// ListAllCards returns one page of every card in the ledger
func (s *CardService) ListAllCards(ctx context.Context, actor models.Actor, page models.PageRequest) (*models.Page[models.CardView], error) {
	if policy.Authorize(actor, policy.ActionListAllCards, policy.Resource{}) == policy.Deny {
		return nil, ErrForbidden
	}

	page = page.Normalize()
	cards, total, err := s.cards.ListCards(ctx, page)
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	result := models.NewPage(toViews(cards), page, total)
	return &result, nil
}

// UpdateCardStatus sets the status of a card
func (s *CardService) UpdateCardStatus(ctx context.Context, actor models.Actor, cardID uuid.UUID, status models.CardStatus) (*models.CardView, error) {
	if policy.Authorize(actor, policy.ActionChangeCardStatus, policy.Resource{}) == policy.Deny {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidCard, status)
	}

	if err := s.cards.UpdateCardStatus(ctx, cardID, status); err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}

	s.log.WithFields(logrus.Fields{"card_id": cardID, "status": status}).Info("Card status updated")
	return toView(card), nil
}

// DeleteCard removes a card unconditionally. A remaining balance is reported
// to administrators.
func (s *CardService) DeleteCard(ctx context.Context, actor models.Actor, cardID uuid.UUID) error {
	if policy.Authorize(actor, policy.ActionDeleteCard, policy.Resource{}) == policy.Deny {
		return ErrForbidden
	}

	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return storeErr(err, ErrCardNotFound)
	}
	if err := s.cards.DeleteCard(ctx, cardID); err != nil {
		return storeErr(err, ErrCardNotFound)
	}

	entry := s.log.WithFields(logrus.Fields{"card_id": cardID, "user_id": card.OwnerID})
	if !card.Balance.IsZero() {
		entry.WithField("balance", card.Balance.StringFixed(2)).Warn("Card deleted with outstanding balance")
		if err := s.notify.CardDeleted(ctx, *card); err != nil {
			entry.WithError(err).Error("Failed to notify about card deletion")
		}
		return nil
	}
	entry.Info("Card deleted")
	return nil
}

// ListCardTransfers returns one page of transfers touching cardID
func (s *CardService) ListCardTransfers(ctx context.Context, actor models.Actor, cardID uuid.UUID, page models.PageRequest) (*models.Page[models.Transfer], error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	if policy.Authorize(actor, policy.ActionReadCard, policy.Resource{OwnerID: card.OwnerID}) == policy.Deny {
		return nil, ErrForbidden
	}

	page = page.Normalize()
	transfers, total, err := s.cards.ListTransfersByCard(ctx, cardID, page)
	if err != nil {
		return nil, storeErr(err, ErrCardNotFound)
	}
	result := models.NewPage(transfers, page, total)
	return &result, nil
}
