package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/utils"
)

// Sender delivers administrator notices via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	return e.Send(addr, auth)
}

// CardDeleted tells the administrator that a card was removed while still holding funds
func (s *Sender) CardDeleted(_ context.Context, card models.Card) error {
	body := fmt.Sprintf(
		"Card %s (%s) owned by %s was deleted with an outstanding balance of %s.\n"+
			"The funds are no longer tracked by the ledger and need manual settlement.\n",
		card.ID, utils.MaskNumber(card.Last4), card.OwnerFullName, card.Balance.StringFixed(2),
	)
	return s.deliver("Card deleted with outstanding balance", body)
}

// SendAuditReport mails the result of a ledger audit to the administrator
func (s *Sender) SendAuditReport(_ context.Context, report models.AuditReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Ledger audit started at %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Cards checked: %d\n", report.CardsChecked)
	fmt.Fprintf(&b, "Expired cards: %d\n", len(report.Expired))
	for _, id := range report.Expired {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	fmt.Fprintf(&b, "Cards failing integrity check: %d\n", len(report.Corrupted))
	for _, id := range report.Corrupted {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	return s.deliver("Card ledger audit report", b.String())
}

func (s *Sender) deliver(subject, body string) error {
	if !s.cfg.MailEnabled() {
		s.logger.WithField("subject", subject).Debug("Mail disabled, notice dropped")
		return nil
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.AdminEmail}
	e.Subject = subject
	e.Text = []byte(body + "\nBank Cards")

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", s.cfg.AdminEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.AdminEmail, subject)
	return nil
}
