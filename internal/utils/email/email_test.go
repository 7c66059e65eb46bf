package email

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
)

func newTestSender(cfg *config.Config) (*Sender, *[]*email.Email) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(cfg, log)
	var sent []*email.Email
	s.send = func(e *email.Email) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent
}

func TestCardDeletedNotice(t *testing.T) {
	s, sent := newTestSender(&config.Config{SMTPHost: "smtp.local", SMTPPort: "25", SenderEmail: "bank@local", AdminEmail: "admin@local"})
	card := models.Card{ID: uuid.New(), Last4: "4242", OwnerFullName: "Alice", Balance: decimal.RequireFromString("12.5")}

	if err := s.CardDeleted(context.Background(), card); err != nil {
		t.Fatalf("CardDeleted err=%v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d mails", len(*sent))
	}
	e := (*sent)[0]
	if e.To[0] != "admin@local" || e.From != "bank@local" {
		t.Fatalf("envelope from=%s to=%v", e.From, e.To)
	}
	body := string(e.Text)
	if !strings.Contains(body, "**** **** **** 4242") || !strings.Contains(body, "12.50") {
		t.Fatalf("body=%q", body)
	}
}

func TestAuditReportMail(t *testing.T) {
	s, sent := newTestSender(&config.Config{SMTPHost: "smtp.local", AdminEmail: "admin@local"})
	expired := uuid.New()
	report := models.AuditReport{StartedAt: time.Now(), CardsChecked: 3, Expired: []uuid.UUID{expired}}

	if err := s.SendAuditReport(context.Background(), report); err != nil {
		t.Fatalf("SendAuditReport err=%v", err)
	}
	if !strings.Contains(string((*sent)[0].Text), expired.String()) {
		t.Fatalf("report body misses expired card")
	}
}

func TestMailDisabled(t *testing.T) {
	s, sent := newTestSender(&config.Config{})
	if err := s.CardDeleted(context.Background(), models.Card{}); err != nil {
		t.Fatalf("CardDeleted err=%v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("mail sent while disabled")
	}
}

func TestSendFailure(t *testing.T) {
	s, _ := newTestSender(&config.Config{SMTPHost: "smtp.local", AdminEmail: "admin@local"})
	boom := errors.New("connection refused")
	s.send = func(*email.Email) error { return boom }

	if err := s.CardDeleted(context.Background(), models.Card{}); !errors.Is(err, boom) {
		t.Fatalf("want wrapped send error, got %v", err)
	}
}
