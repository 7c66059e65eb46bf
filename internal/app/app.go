// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/jobs"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/Dan9191/bank-cards/internal/utils/email"
)

// NewLogger builds the JSON logger. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// App holds the assembled components of one process
type App struct {
	Config    *config.Config
	Log       *logrus.Logger
	Store     repository.Store
	Codec     *utils.Codec
	Mailer    *email.Sender
	Cards     *service.CardService
	Transfers *service.TransferService
	Users     *service.UserService
	Auditor   *jobs.Auditor

	db *sql.DB
}

// New opens the configured store, applies the schema and builds every service
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	codec, err := utils.NewCodec(cfg.EncryptionAlgorithm, cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize card number codec: %w", err)
	}

	a := &App{Config: cfg, Log: log, Codec: codec}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Mailer = email.NewSender(cfg, log)
	a.Cards = service.NewCardService(a.Store, a.Store, codec, a.Mailer, log, cfg.CardBIN)
	a.Transfers = service.NewTransferService(a.Store, log, cfg.TransferRetries)
	a.Users = service.NewUserService(a.Store, a.Store, log, cfg.JWTSecret, cfg.JWTTTL)
	a.Auditor = jobs.NewAuditor(a.Store, codec, a.Mailer, log)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreDriver {
	case config.StoreMemory:
		a.Log.Warn("Using in-memory store, data is lost on exit")
		a.Store = memory.NewStore(a.Config.LockTimeout)
		return nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", a.Config.DBConn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		repo := repository.NewRepository(db, a.Config.LockTimeout)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		a.db = db
		a.Store = repo
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
	}
}

// SeedAdmin creates the configured administrator on an empty user table
func (a *App) SeedAdmin(ctx context.Context) error {
	created, err := a.Users.EnsureAdmin(ctx, a.Config.AdminUsername, a.Config.AdminPassword, a.Config.AdminFullName)
	if err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	if created {
		a.Log.WithField("username", a.Config.AdminUsername).Info("Admin account created")
	}
	return nil
}

// Close releases the database connection
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
