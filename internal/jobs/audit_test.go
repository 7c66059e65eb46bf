package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/utils"
)

type reporterFunc func(ctx context.Context, report models.AuditReport) error

func (f reporterFunc) SendAuditReport(ctx context.Context, report models.AuditReport) error {
	return f(ctx, report)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedCard(t *testing.T, store *memory.Store, codec *utils.Codec, ownerID int64, number, last4 string, year, month int) uuid.UUID {
	t.Helper()
	encrypted, err := codec.Encrypt(number)
	if err != nil {
		t.Fatalf("Encrypt err=%v", err)
	}
	card := &models.Card{
		ID:              uuid.New(),
		NumberEncrypted: encrypted,
		Last4:           last4,
		ExpiryYear:      year,
		ExpiryMonth:     month,
		Status:          models.CardStatusActive,
		OwnerID:         ownerID,
	}
	if err := store.CreateCard(context.Background(), card); err != nil {
		t.Fatalf("CreateCard err=%v", err)
	}
	return card.ID
}

func TestAuditorRun(t *testing.T) {
	ctx := context.Background()
	codec, err := utils.NewCodec(utils.AlgorithmAESGCM, "00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("NewCodec err=%v", err)
	}
	store := memory.NewStore(time.Second)
	owner := &models.User{Username: "alice", FullName: "Alice", Role: models.RoleUser}
	if err := store.CreateUser(ctx, owner); err != nil {
		t.Fatalf("CreateUser err=%v", err)
	}

	seedCard(t, store, codec, owner.ID, "4000001234567899", "7899", 2030, 1)
	expired := seedCard(t, store, codec, owner.ID, "4000001234561111", "1111", 2025, 5)
	tampered := seedCard(t, store, codec, owner.ID, "4000001234562222", "9999", 2030, 1)
	for i := 0; i < auditPageSize; i++ {
		seedCard(t, store, codec, owner.ID, "4000000000000000", "0000", 2030, 1)
	}

	var reports []models.AuditReport
	auditor := NewAuditor(store, codec, reporterFunc(func(_ context.Context, r models.AuditReport) error {
		reports = append(reports, r)
		return nil
	}), quietLogger())
	auditor.now = func() time.Time { return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC) }

	report, err := auditor.Run(ctx)
	if err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if report.CardsChecked != auditPageSize+3 {
		t.Fatalf("checked=%d", report.CardsChecked)
	}
	if len(report.Expired) != 1 || report.Expired[0] != expired {
		t.Fatalf("expired=%v", report.Expired)
	}
	if len(report.Corrupted) != 1 || report.Corrupted[0] != tampered {
		t.Fatalf("corrupted=%v", report.Corrupted)
	}
	if len(reports) != 1 {
		t.Fatalf("reports sent=%d", len(reports))
	}
}

func TestAuditorCleanLedgerIsNotReported(t *testing.T) {
	codec, _ := utils.NewCodec(utils.AlgorithmAESGCM, "00112233445566778899aabbccddeeff")
	auditor := NewAuditor(memory.NewStore(time.Second), codec, reporterFunc(func(context.Context, models.AuditReport) error {
		return errors.New("should not be called")
	}), quietLogger())

	report, err := auditor.Run(context.Background())
	if err != nil || !report.Clean() || report.CardsChecked != 0 {
		t.Fatalf("report=%+v err=%v", report, err)
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	if _, err := Schedule("not a cron spec", &Auditor{}, quietLogger()); err == nil {
		t.Fatal("want error for invalid spec")
	}
	c, err := Schedule("0 3 * * *", &Auditor{}, quietLogger())
	if err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("entries=%d", len(c.Entries()))
	}
}
