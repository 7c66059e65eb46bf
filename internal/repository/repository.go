package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Dan9191/bank-cards/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgreSQL error codes mapped onto repository errors
const (
	pqUniqueViolation      = "23505"
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

var (
	cardSortColumns = map[string]string{
		"id":          "c.id",
		"expiryYear":  "c.expiry_year",
		"expiryMonth": "c.expiry_month",
		"status":      "c.status",
		"balance":     "c.balance",
	}
	userSortColumns = map[string]string{
		"id":       "id",
		"username": "username",
		"fullName": "full_name",
	}
	transferSortColumns = map[string]string{
		"id":        "id",
		"createdAt": "created_at",
		"amount":    "amount",
	}
)

const cardColumns = `c.id, c.number_encrypted, c.last4, c.expiry_year, c.expiry_month,
		c.status, c.balance, c.owner_id, u.full_name, c.created_at, c.updated_at`

// Repository provides PostgreSQL backed storage for users, cards and transfers
type Repository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ Store = (*Repository)(nil)

// NewRepository initializes a new repository. lockTimeout bounds the wait for
// card row locks during a transfer.
func NewRepository(db *sql.DB, lockTimeout time.Duration) *Repository {
	return &Repository{db: db, lockTimeout: lockTimeout}
}

// Migrate applies the embedded schema files in lexical order
func (r *Repository) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, full_name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.FullName, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classify(err))
	}
	return nil
}

// GetUserByID retrieves a user by id
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findUser(ctx, "id = $1", id)
}

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, "username = $1", username)
}

// GetUserByFullName retrieves the first user with the given full name
func (r *Repository) GetUserByFullName(ctx context.Context, fullName string) (*models.User, error) {
	return r.findUser(ctx, "full_name = $1", fullName)
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `
		SELECT id, username, full_name, password_hash, role, created_at, updated_at
		FROM bank.users
		WHERE ` + where + `
		ORDER BY id
		LIMIT 1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// ListUsers returns one page of users and the total count
func (r *Repository) ListUsers(ctx context.Context, page models.PageRequest) ([]models.User, int64, error) {
	order, err := orderBy(page.Sort, userSortColumns, "id")
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT id, username, full_name, password_hash, role, created_at, updated_at
		FROM bank.users
		` + order + `
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

// UpdateUser persists username, full name and password hash of user
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE bank.users
		SET username = $1, full_name = $2, password_hash = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.FullName, user.PasswordHash, user.ID).
		Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", classify(err))
	}
	return nil
}

// DeleteUser removes a user; the foreign key cascades to the user's cards
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, `DELETE FROM bank.users WHERE id = $1`, id)
}

// CountUsers returns the number of registered users
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CreateCard inserts a card row
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO bank.cards (id, number_encrypted, last4, expiry_year, expiry_month, status, balance, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		card.ID, card.NumberEncrypted, card.Last4, card.ExpiryYear, card.ExpiryMonth,
		card.Status, card.Balance, card.OwnerID,
	).Scan(&card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", classify(err))
	}
	return nil
}

// GetCard retrieves a card with its owner's full name
func (r *Repository) GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM bank.cards c
		JOIN bank.users u ON u.id = c.owner_id
		WHERE c.id = $1`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// ListCardsByOwner returns one page of the owner's cards, id breaking ties
func (r *Repository) ListCardsByOwner(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int64, error) {
	return r.listCards(ctx, "WHERE c.owner_id = $1", []any{ownerID}, page)
}

// ListCards returns one page of all cards
func (r *Repository) ListCards(ctx context.Context, page models.PageRequest) ([]models.Card, int64, error) {
	return r.listCards(ctx, "", nil, page)
}

func (r *Repository) listCards(ctx context.Context, where string, args []any, page models.PageRequest) ([]models.Card, int64, error) {
	order, err := orderBy(page.Sort, cardSortColumns, "c.id")
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM bank.cards c ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s
		FROM bank.cards c
		JOIN bank.users u ON u.id = c.owner_id
		%s
		%s
		LIMIT $%d OFFSET $%d`, cardColumns, where, order, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	return cards, total, rows.Err()
}

// UpdateCardStatus sets the status of a card
func (r *Repository) UpdateCardStatus(ctx context.Context, id uuid.UUID, status models.CardStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bank.cards SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update card status: %w", classify(err))
	}
	return expectOneRow(res)
}

// DeleteCard removes a card row
func (r *Repository) DeleteCard(ctx context.Context, id uuid.UUID) error {
	return r.deleteRow(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
}

// Transfer locks both card rows with SELECT ... FOR UPDATE in ascending id
// order under a transaction-local lock_timeout, runs fn and persists the staged
// balances and transfer record in the same transaction.
func (r *Repository) Transfer(ctx context.Context, fromID, toID uuid.UUID, fn TransferFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	first, second := LockOrder(fromID, toID)
	locked := make(map[uuid.UUID]*models.Card, 2)
	for _, id := range []uuid.UUID{first, second} {
		if _, ok := locked[id]; ok {
			continue
		}
		card, err := lockCard(ctx, tx, id)
		if err != nil {
			return err
		}
		locked[id] = card
	}

	transfer, err := fn(locked[fromID], locked[toID])
	if err != nil {
		return err
	}

	for _, id := range []uuid.UUID{first, second} {
		card, ok := locked[id]
		if !ok {
			continue
		}
		delete(locked, id)
		if _, err := tx.ExecContext(ctx,
			`UPDATE bank.cards SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
			card.Balance, card.ID); err != nil {
			return fmt.Errorf("failed to update balance: %w", classify(err))
		}
	}

	if transfer != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bank.card_transfers (id, user_id, from_card_id, to_card_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			transfer.ID, transfer.UserID, transfer.FromCardID, transfer.ToCardID, transfer.Amount, transfer.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to record transfer: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", classify(err))
	}
	return nil
}

func lockCard(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM bank.cards c
		JOIN bank.users u ON u.id = c.owner_id
		WHERE c.id = $1
		FOR UPDATE OF c`
	card, err := scanCard(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock card %s: %w", id, classify(err))
	}
	return card, nil
}

// ListTransfersByCard returns transfers where the card is source or destination
func (r *Repository) ListTransfersByCard(ctx context.Context, cardID uuid.UUID, page models.PageRequest) ([]models.Transfer, int64, error) {
	order, err := orderBy(page.Sort, transferSortColumns, "id")
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank.card_transfers WHERE from_card_id = $1 OR to_card_id = $1`, cardID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transfers: %w", err)
	}

	query := `
		SELECT id, user_id, from_card_id, to_card_id, amount, created_at
		FROM bank.card_transfers
		WHERE from_card_id = $1 OR to_card_id = $1
		` + order + `
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, cardID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.UserID, &t.FromCardID, &t.ToCardID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, total, rows.Err()
}

func (r *Repository) deleteRow(ctx context.Context, query string, id any) error {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", classify(err))
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanCard(row rowScanner) (*models.Card, error) {
	c := &models.Card{}
	err := row.Scan(
		&c.ID, &c.NumberEncrypted, &c.Last4, &c.ExpiryYear, &c.ExpiryMonth,
		&c.Status, &c.Balance, &c.OwnerID, &c.OwnerFullName, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// orderBy builds an ORDER BY clause from a sort key; a leading "-" sorts
// descending. tiebreak is always appended so pages are stable.
func orderBy(key string, allowed map[string]string, tiebreak string) (string, error) {
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	if key == "" {
		key = "id"
	}
	col, ok := allowed[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, key)
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if col == tiebreak {
		return fmt.Sprintf("ORDER BY %s %s", col, dir), nil
	}
	return fmt.Sprintf("ORDER BY %s %s, %s ASC", col, dir, tiebreak), nil
}

// classify maps driver errors onto repository errors, keeping the cause
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Message)
	case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	default:
		return err
	}
}
