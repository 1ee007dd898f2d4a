package testsend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/sendmail"
)

type fakeLeadSource struct {
	leads map[uuid.UUID]*models.Lead
}

func (f *fakeLeadSource) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return lead, nil
}

type fakeResolver struct {
	resolutions map[int]*sequence.Resolution
}

func (f *fakeResolver) Resolve(_ context.Context, _ uuid.UUID, stepNumber int) (*sequence.Resolution, error) {
	return f.resolutions[stepNumber], nil
}

type fakeAppender struct {
	rows []*models.EmailLog
}

func (f *fakeAppender) Append(_ context.Context, row *models.EmailLog) (bool, error) {
	for _, existing := range f.rows {
		if existing.IdempotencyKey == row.IdempotencyKey {
			return false, nil
		}
	}
	f.rows = append(f.rows, row)
	return true, nil
}

type fakeSender struct {
	sent []sendmail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg sendmail.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "sw-msg-1", nil
}

type fixture struct {
	svc    *Service
	leads  *fakeLeadSource
	logs   *fakeAppender
	sender *fakeSender
}

func newFixture(t *testing.T, resolutions map[int]*sequence.Resolution) *fixture {
	t.Helper()
	leads := &fakeLeadSource{leads: map[uuid.UUID]*models.Lead{}}
	logs := &fakeAppender{}
	sender := &fakeSender{}
	cfg := &config.Config{}
	cfg.Mailer.DefaultFrom = "outreach@outflow.dev"

	svc, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Leads:    leads,
		Resolver: &fakeResolver{resolutions: resolutions},
		Logs:     logs,
		Sender:   sender,
		Now:      func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, leads: leads, logs: logs, sender: sender}
}

func seedLead(f *fixture) *models.Lead {
	email := "ana@example.com"
	first := "Ana"
	step := 2
	campaignID := uuid.New()
	lead := &models.Lead{
		ID:            uuid.New(),
		Email:         &email,
		FirstName:     &first,
		CampaignID:    &campaignID,
		NextEmailStep: &step,
	}
	f.leads.leads[lead.ID] = lead
	return lead
}

func stepResolution(subject, body string) *sequence.Resolution {
	return &sequence.Resolution{
		Campaign: models.Campaign{ID: uuid.New(), FromEmail: "sales@acme.io", FromName: "Acme Sales", IsActive: true},
		Step:     models.CampaignStep{StepNumber: 2},
		Template: models.EmailTemplate{Subject: subject, Body: body},
	}
}

func TestSendRendersAndLogs(t *testing.T) {
	f := newFixture(t, map[int]*sequence.Resolution{
		2: stepResolution("Hi {{first_name}}", "Hello {{first_name}}"),
	})
	lead := seedLead(f)

	result, err := f.svc.Send(context.Background(), lead.ID, "req-1")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.Subject != "Hi Ana" || msg.FromEmail != "sales@acme.io" || msg.ToEmail != "ana@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if result.StepNumber != 2 || result.ProviderMessageID != "sw-msg-1" {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(f.logs.rows) != 1 {
		t.Fatalf("expected one log row, got %d", len(f.logs.rows))
	}
	if f.logs.rows[0].Event != "test" {
		t.Fatalf("log event = %s, want test", f.logs.rows[0].Event)
	}
}

func TestSendRetrySameRequestLogsOnce(t *testing.T) {
	f := newFixture(t, map[int]*sequence.Resolution{
		2: stepResolution("Hi", "Hello"),
	})
	lead := seedLead(f)

	if _, err := f.svc.Send(context.Background(), lead.ID, "req-1"); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), lead.ID, "req-1"); err != nil {
		t.Fatalf("second Send: %v", err)
	}

	if len(f.sender.sent) != 2 {
		t.Fatalf("expected two provider sends, got %d", len(f.sender.sent))
	}
	if len(f.logs.rows) != 1 {
		t.Fatalf("retried request must not double-log, got %d rows", len(f.logs.rows))
	}
}

func TestSendUnknownLead(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Send(context.Background(), uuid.New(), "req-1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSendNoActiveStep(t *testing.T) {
	f := newFixture(t, nil)
	lead := seedLead(f)

	_, err := f.svc.Send(context.Background(), lead.ID, "req-1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestSendFallsBackToDefaultFrom(t *testing.T) {
	res := stepResolution("Hi", "Hello")
	res.Campaign.FromEmail = ""
	f := newFixture(t, map[int]*sequence.Resolution{2: res})
	lead := seedLead(f)

	if _, err := f.svc.Send(context.Background(), lead.ID, "req-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f.sender.sent[0].FromEmail != "outreach@outflow.dev" {
		t.Fatalf("from = %s, want default", f.sender.sent[0].FromEmail)
	}
}

func TestSendProviderFailure(t *testing.T) {
	f := newFixture(t, map[int]*sequence.Resolution{
		2: stepResolution("Hi", "Hello"),
	})
	f.sender.err = errors.New("mailbox full")
	lead := seedLead(f)

	_, err := f.svc.Send(context.Background(), lead.ID, "req-1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(f.logs.rows) != 0 {
		t.Fatal("failed test send must not log a delivery")
	}
}
