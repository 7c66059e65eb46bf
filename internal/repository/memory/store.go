// Package memory implements the repository interfaces in process memory.
// Card rows carry individual locks with the same ordering and timeout rules
// as the PostgreSQL implementation.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

var errNegativeBalance = errors.New("balance check violated")

// Store holds users, cards and transfers. mu guards the maps; a card's row
// lock must be held to change its balance, status or existence.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]*models.User
	cards      map[uuid.UUID]*models.Card
	rowLocks   map[uuid.UUID]chan struct{}
	transfers  []models.Transfer
	nextUserID int64

	lockTimeout time.Duration
	now         func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store whose row locks give up after lockTimeout
func NewStore(lockTimeout time.Duration) *Store {
	return &Store{
		users:       make(map[int64]*models.User),
		cards:       make(map[uuid.UUID]*models.Card),
		rowLocks:    make(map[uuid.UUID]chan struct{}),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username %q", repository.ErrDuplicate, user.Username)
		}
	}
	s.nextUserID++
	now := s.now()
	user.ID = s.nextUserID
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	s.users[cp.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Username == username })
}

func (s *Store) GetUserByFullName(_ context.Context, fullName string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.FullName == fullName })
}

// findUser returns the matching user with the lowest id
func (s *Store) findUser(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.User
	for _, u := range s.users {
		if match(u) && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *Store) ListUsers(_ context.Context, page models.PageRequest) ([]models.User, int64, error) {
	less, err := userOrder(page.Sort)
	if err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *u)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return less(&all[i], &all[j]) })
	return window(all, page), int64(len(all)), nil
}

func (s *Store) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, u := range s.users {
		if u.ID != user.ID && u.Username == user.Username {
			return fmt.Errorf("%w: username %q", repository.ErrDuplicate, user.Username)
		}
	}
	stored.Username = user.Username
	stored.FullName = user.FullName
	stored.PasswordHash = user.PasswordHash
	stored.UpdatedAt = s.now()
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

// DeleteUser locks every card of the user, then removes them together with
// the user. Cards issued while the locks were being taken are picked up by
// another pass.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	locked := make(map[uuid.UUID]bool)
	defer func() {
		for cid := range locked {
			s.unlockRow(cid)
		}
	}()

	for {
		s.mu.Lock()
		if _, ok := s.users[id]; !ok {
			s.mu.Unlock()
			return repository.ErrNotFound
		}
		var pending []uuid.UUID
		for cid, c := range s.cards {
			if c.OwnerID == id && !locked[cid] {
				pending = append(pending, cid)
			}
		}
		if len(pending) == 0 {
			for cid := range locked {
				delete(s.cards, cid)
			}
			delete(s.users, id)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		sort.Slice(pending, func(i, j int) bool { return repository.CompareIDs(pending[i], pending[j]) < 0 })
		for _, cid := range pending {
			if err := s.lockRow(ctx, cid); err != nil {
				return err
			}
			locked[cid] = true
		}
	}
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) CreateCard(_ context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[card.OwnerID]; !ok {
		return fmt.Errorf("owner %d does not exist", card.OwnerID)
	}
	if _, ok := s.cards[card.ID]; ok {
		return fmt.Errorf("%w: card %s", repository.ErrDuplicate, card.ID)
	}
	if card.Balance.IsNegative() {
		return errNegativeBalance
	}
	now := s.now()
	card.CreatedAt, card.UpdatedAt = now, now
	cp := *card
	cp.OwnerFullName = ""
	s.cards[cp.ID] = &cp
	return nil
}

func (s *Store) GetCard(_ context.Context, id uuid.UUID) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.joined(c), nil
}

func (s *Store) ListCardsByOwner(_ context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int64, error) {
	return s.listCards(page, func(c *models.Card) bool { return c.OwnerID == ownerID })
}

func (s *Store) ListCards(_ context.Context, page models.PageRequest) ([]models.Card, int64, error) {
	return s.listCards(page, func(*models.Card) bool { return true })
}

func (s *Store) listCards(page models.PageRequest, match func(*models.Card) bool) ([]models.Card, int64, error) {
	less, err := cardOrder(page.Sort)
	if err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	var all []models.Card
	for _, c := range s.cards {
		if match(c) {
			all = append(all, *s.joined(c))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return less(&all[i], &all[j]) })
	return window(all, page), int64(len(all)), nil
}

func (s *Store) UpdateCardStatus(ctx context.Context, id uuid.UUID, status models.CardStatus) error {
	if err := s.lockRow(ctx, id); err != nil {
		return err
	}
	defer s.unlockRow(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteCard(ctx context.Context, id uuid.UUID) error {
	if err := s.lockRow(ctx, id); err != nil {
		return err
	}
	defer s.unlockRow(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.cards, id)
	return nil
}

// Transfer locks both rows in ascending id order, hands copies to fn and
// publishes the staged balances under a single write of mu so readers see
// both updates or neither.
func (s *Store) Transfer(ctx context.Context, fromID, toID uuid.UUID, fn repository.TransferFunc) error {
	first, second := repository.LockOrder(fromID, toID)
	ids := []uuid.UUID{first}
	if second != first {
		ids = append(ids, second)
	}
	for _, id := range ids {
		if err := s.lockRow(ctx, id); err != nil {
			return err
		}
		defer s.unlockRow(id)
	}

	staged := make(map[uuid.UUID]*models.Card, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		c, ok := s.cards[id]
		if !ok {
			s.mu.RUnlock()
			return repository.ErrNotFound
		}
		staged[id] = s.joined(c)
	}
	s.mu.RUnlock()

	transfer, err := fn(staged[fromID], staged[toID])
	if err != nil {
		return err
	}

	for _, c := range staged {
		if c.Balance.IsNegative() {
			return errNegativeBalance
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, c := range staged {
		stored, ok := s.cards[id]
		if !ok {
			return repository.ErrConflict
		}
		stored.Balance = c.Balance
		stored.UpdatedAt = now
	}
	if transfer != nil {
		s.transfers = append(s.transfers, *transfer)
	}
	return nil
}

func (s *Store) ListTransfersByCard(_ context.Context, cardID uuid.UUID, page models.PageRequest) ([]models.Transfer, int64, error) {
	less, err := transferOrder(page.Sort)
	if err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	var all []models.Transfer
	for _, t := range s.transfers {
		if t.FromCardID == cardID || t.ToCardID == cardID {
			all = append(all, t)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return less(&all[i], &all[j]) })
	return window(all, page), int64(len(all)), nil
}

// joined copies c and fills the owner's full name. Caller holds mu.
func (s *Store) joined(c *models.Card) *models.Card {
	cp := *c
	if u, ok := s.users[c.OwnerID]; ok {
		cp.OwnerFullName = u.FullName
	}
	return &cp
}

func (s *Store) rowLock(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[id] = ch
	}
	return ch
}

// lockRow waits at most lockTimeout for the row lock of id
func (s *Store) lockRow(ctx context.Context, id uuid.UUID) error {
	ch := s.rowLock(id)
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock on card %s not acquired within %s", repository.ErrConflict, id, s.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", repository.ErrConflict, ctx.Err())
	}
}

func (s *Store) unlockRow(id uuid.UUID) {
	<-s.rowLock(id)
}

func window[T any](all []T, page models.PageRequest) []T {
	start := page.Offset()
	if start < 0 || start >= len(all) {
		return nil
	}
	end := start + page.Size
	if page.Size <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func splitSort(key string) (string, bool) {
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	if key == "" {
		key = "id"
	}
	return key, desc
}

// ordered builds a less function from a primary comparison with idCmp as tiebreak
func ordered[T any](cmp func(a, b *T) int, idCmp func(a, b *T) int, desc bool) func(a, b *T) bool {
	return func(a, b *T) bool {
		c := cmp(a, b)
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return idCmp(a, b) < 0
	}
}

func cardOrder(sortKey string) (func(a, b *models.Card) bool, error) {
	key, desc := splitSort(sortKey)
	byID := func(a, b *models.Card) int { return repository.CompareIDs(a.ID, b.ID) }
	var cmp func(a, b *models.Card) int
	switch key {
	case "id":
		cmp = byID
	case "expiryYear":
		cmp = func(a, b *models.Card) int { return a.ExpiryYear - b.ExpiryYear }
	case "expiryMonth":
		cmp = func(a, b *models.Card) int { return a.ExpiryMonth - b.ExpiryMonth }
	case "status":
		cmp = func(a, b *models.Card) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case "balance":
		cmp = func(a, b *models.Card) int { return a.Balance.Cmp(b.Balance) }
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidSort, key)
	}
	return ordered(cmp, byID, desc), nil
}

func userOrder(sortKey string) (func(a, b *models.User) bool, error) {
	key, desc := splitSort(sortKey)
	byID := func(a, b *models.User) int { return int(a.ID - b.ID) }
	var cmp func(a, b *models.User) int
	switch key {
	case "id":
		cmp = byID
	case "username":
		cmp = func(a, b *models.User) int { return strings.Compare(a.Username, b.Username) }
	case "fullName":
		cmp = func(a, b *models.User) int { return strings.Compare(a.FullName, b.FullName) }
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidSort, key)
	}
	return ordered(cmp, byID, desc), nil
}

func transferOrder(sortKey string) (func(a, b *models.Transfer) bool, error) {
	key, desc := splitSort(sortKey)
	byID := func(a, b *models.Transfer) int { return repository.CompareIDs(a.ID, b.ID) }
	var cmp func(a, b *models.Transfer) int
	switch key {
	case "id":
		cmp = byID
	case "createdAt":
		cmp = func(a, b *models.Transfer) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "amount":
		cmp = func(a, b *models.Transfer) int { return a.Amount.Cmp(b.Amount) }
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidSort, key)
	}
	return ordered(cmp, byID, desc), nil
}
