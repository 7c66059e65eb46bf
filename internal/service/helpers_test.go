package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const testKey = "00112233445566778899aabbccddeeff"

var admin = models.Actor{ID: 999, Role: models.RoleAdmin}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	store     *memory.Store
	codec     *utils.Codec
	cards     *CardService
	transfers *TransferService
	users     *UserService
	notifier  *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := utils.NewCodec(utils.AlgorithmAESGCM, testKey)
	if err != nil {
		t.Fatalf("NewCodec err=%v", err)
	}
	store := memory.NewStore(time.Second)
	log := quietLogger()
	notifier := &fakeNotifier{}
	return &fixture{
		store:     store,
		codec:     codec,
		cards:     NewCardService(store, store, codec, notifier, log, "400000"),
		transfers: NewTransferService(store, log, 3),
		users:     NewUserService(store, store, log, "test-secret", time.Hour),
		notifier:  notifier,
	}
}

func (f *fixture) user(t *testing.T, username string) models.Actor {
	t.Helper()
	u := &models.User{Username: username, FullName: "Full " + username, Role: models.RoleUser}
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) err=%v", username, err)
	}
	return models.ActorOf(u)
}

func (f *fixture) card(t *testing.T, owner models.Actor, balance string) *models.CardView {
	t.Helper()
	b := decimal.RequireFromString(balance)
	view, err := f.cards.CreateCard(context.Background(), admin, owner.ID, models.CardRequest{InitialBalance: &b})
	if err != nil {
		t.Fatalf("CreateCard err=%v", err)
	}
	return view
}

func (f *fixture) balance(t *testing.T, view *models.CardView) string {
	t.Helper()
	c, err := f.store.GetCard(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("GetCard err=%v", err)
	}
	return c.Balance.StringFixed(2)
}

type fakeNotifier struct {
	deleted []models.Card
	err     error
}

func (n *fakeNotifier) CardDeleted(_ context.Context, card models.Card) error {
	n.deleted = append(n.deleted, card)
	return n.err
}

// conflictingCards fails the first failures transfers with a lock conflict
type conflictingCards struct {
	repository.CardRepository
	failures int
	calls    int
}

func (c *conflictingCards) Transfer(ctx context.Context, fromID, toID uuid.UUID, fn repository.TransferFunc) error {
	c.calls++
	if c.calls <= c.failures {
		return repository.ErrConflict
	}
	return c.CardRepository.Transfer(ctx, fromID, toID, fn)
}
