// Package jobs runs periodic maintenance over the card ledger.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const auditPageSize = models.MaxPageSize

// Reporter receives the result of every audit pass
type Reporter interface {
	SendAuditReport(ctx context.Context, report models.AuditReport) error
}

// Auditor scans every card for expiry and checks that the stored ciphertext
// still decrypts to a number ending in the recorded last four digits
type Auditor struct {
	cards    repository.CardRepository
	codec    *utils.Codec
	reporter Reporter
	log      *logrus.Logger
	now      func() time.Time
}

func NewAuditor(cards repository.CardRepository, codec *utils.Codec, reporter Reporter, log *logrus.Logger) *Auditor {
	return &Auditor{
		cards:    cards,
		codec:    codec,
		reporter: reporter,
		log:      log,
		now:      time.Now,
	}
}

// Run performs one audit pass and reports it when something needs attention
func (a *Auditor) Run(ctx context.Context) (*models.AuditReport, error) {
	report := &models.AuditReport{StartedAt: a.now()}

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cards, total, err := a.cards.ListCards(ctx, models.PageRequest{Page: page, Size: auditPageSize, Sort: "id"})
		if err != nil {
			return nil, fmt.Errorf("failed to list cards: %w", err)
		}
		for i := range cards {
			a.check(&cards[i], report)
		}
		if len(cards) == 0 || int64((page+1)*auditPageSize) >= total {
			break
		}
	}

	entry := a.log.WithFields(logrus.Fields{
		"cards_checked": report.CardsChecked,
		"expired":       len(report.Expired),
		"corrupted":     len(report.Corrupted),
	})
	if report.Clean() {
		entry.Info("Card audit finished")
		return report, nil
	}
	entry.Warn("Card audit found cards to review")

	if a.reporter != nil {
		if err := a.reporter.SendAuditReport(ctx, *report); err != nil {
			return report, fmt.Errorf("failed to send audit report: %w", err)
		}
	}
	return report, nil
}

func (a *Auditor) check(card *models.Card, report *models.AuditReport) {
	report.CardsChecked++
	if card.IsExpired(report.StartedAt) {
		report.Expired = append(report.Expired, card.ID)
	}

	plain, err := a.codec.Decrypt(card.NumberEncrypted)
	if err != nil || utils.LastFour(plain) != card.Last4 {
		a.log.WithError(err).WithField("card_id", card.ID).Error("Card number failed integrity check")
		report.Corrupted = append(report.Corrupted, card.ID)
	}
}

// Schedule registers the auditor on a cron spec. The caller starts and
// stops the returned scheduler.
func Schedule(spec string, auditor *Auditor, log *logrus.Logger) (*cron.Cron, error) {
	logger := cron.PrintfLogger(log)
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(spec, func() {
		if _, err := auditor.Run(context.Background()); err != nil {
			log.WithError(err).Error("Card audit failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	return c, nil
}
