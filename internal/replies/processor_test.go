package replies

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/internal/leads"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type fakeLeadStore struct {
	leads      map[uuid.UUID]*models.Lead
	markErr    error
	replied    map[uuid.UUID]leads.ReplyFields
	repliedAt  map[uuid.UUID]time.Time
	markCalled int
}

func (f *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return lead, nil
}

func (f *fakeLeadStore) MarkReplied(_ context.Context, leadID uuid.UUID, reply leads.ReplyFields, now time.Time) error {
	f.markCalled++
	if f.markErr != nil {
		return f.markErr
	}
	if f.replied == nil {
		f.replied = map[uuid.UUID]leads.ReplyFields{}
		f.repliedAt = map[uuid.UUID]time.Time{}
	}
	f.replied[leadID] = reply
	f.repliedAt[leadID] = now
	return nil
}

type fakeAppender struct {
	rows      []*models.EmailLog
	appendErr error
}

func (f *fakeAppender) Append(_ context.Context, row *models.EmailLog) (bool, error) {
	if f.appendErr != nil {
		return false, f.appendErr
	}
	for _, existing := range f.rows {
		if existing.IdempotencyKey == row.IdempotencyKey {
			return false, nil
		}
	}
	f.rows = append(f.rows, row)
	return true, nil
}

type fakeStopper struct {
	stops   []string
	stopErr error
}

func (f *fakeStopper) Stop(_ context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops = append(f.stops, leadID.String()+":"+string(reason)+":"+nonce)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newProcessor(t *testing.T, store *fakeLeadStore, appender *fakeAppender, stopper *fakeStopper) *Processor {
	t.Helper()
	proc, err := NewProcessor(ProcessorParams{
		Logger:     testLogger(),
		Leads:      store,
		Logs:       appender,
		Controller: stopper,
		Now:        func() time.Time { return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return proc
}

func knownLead() (*fakeLeadStore, uuid.UUID) {
	leadID := uuid.New()
	campaignID := uuid.New()
	store := &fakeLeadStore{
		leads: map[uuid.UUID]*models.Lead{
			leadID: {ID: leadID, CampaignID: &campaignID},
		},
	}
	return store, leadID
}

func TestProcessRecordsReplyAndHalts(t *testing.T) {
	store, leadID := knownLead()
	appender := &fakeAppender{}
	stopper := &fakeStopper{}
	proc := newProcessor(t, store, appender, stopper)

	event := ReplyEvent{
		EventID:   "evt-42",
		LeadID:    leadID,
		FromEmail: "ana@example.com",
		Subject:   "Re: Quick question",
		Snippet:   "Sounds interesting, tell me more",
	}
	if err := proc.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if store.replied[leadID].FromEmail != "ana@example.com" {
		t.Fatalf("reply not recorded: %+v", store.replied[leadID])
	}
	if len(appender.rows) != 1 {
		t.Fatalf("expected one log row, got %d", len(appender.rows))
	}
	row := appender.rows[0]
	if row.Direction != enums.DirectionInbound || row.Event != enums.LogEventReply {
		t.Fatalf("unexpected log row %+v", row)
	}
	if row.IdempotencyKey != "reply:"+leadID.String()+":evt-42" {
		t.Fatalf("unexpected idempotency key %q", row.IdempotencyKey)
	}
	if len(stopper.stops) != 1 || stopper.stops[0] != leadID.String()+":reply:evt-42" {
		t.Fatalf("unexpected stops %v", stopper.stops)
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	store, leadID := knownLead()
	appender := &fakeAppender{}
	stopper := &fakeStopper{}
	proc := newProcessor(t, store, appender, stopper)

	event := ReplyEvent{EventID: "evt-42", LeadID: leadID, FromEmail: "ana@example.com"}
	if err := proc.Process(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := proc.Process(context.Background(), event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if len(appender.rows) != 1 {
		t.Fatalf("expected reply log deduped, got %d rows", len(appender.rows))
	}
	if store.markCalled != 2 {
		t.Fatalf("MarkReplied should converge, got %d calls", store.markCalled)
	}
}

func TestProcessUnknownLead(t *testing.T) {
	proc := newProcessor(t, &fakeLeadStore{}, &fakeAppender{}, &fakeStopper{})

	err := proc.Process(context.Background(), ReplyEvent{EventID: "evt-1", LeadID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessValidation(t *testing.T) {
	store, leadID := knownLead()
	proc := newProcessor(t, store, &fakeAppender{}, &fakeStopper{})

	err := proc.Process(context.Background(), ReplyEvent{EventID: "evt-1"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for nil lead id, got %v", err)
	}

	err = proc.Process(context.Background(), ReplyEvent{LeadID: leadID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing event id, got %v", err)
	}
}

func TestProcessLogFailureStillHalts(t *testing.T) {
	store, leadID := knownLead()
	stopper := &fakeStopper{}
	proc := newProcessor(t, store, &fakeAppender{appendErr: errors.New("log table unavailable")}, stopper)

	if err := proc.Process(context.Background(), ReplyEvent{EventID: "evt-1", LeadID: leadID}); err != nil {
		t.Fatalf("Process should tolerate log failure: %v", err)
	}
	if len(stopper.stops) != 1 {
		t.Fatal("sequence must still be halted")
	}
}

func TestProcessMarkRepliedFailureIsRetryable(t *testing.T) {
	store, leadID := knownLead()
	store.markErr = errors.New("deadlock detected")
	stopper := &fakeStopper{}
	proc := newProcessor(t, store, &fakeAppender{}, stopper)

	err := proc.Process(context.Background(), ReplyEvent{EventID: "evt-1", LeadID: leadID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(stopper.stops) != 0 {
		t.Fatal("halt must not run when the reply write failed")
	}
}

func TestProcessStopFailurePropagates(t *testing.T) {
	store, leadID := knownLead()
	proc := newProcessor(t, store, &fakeAppender{}, &fakeStopper{stopErr: errors.New("db down")})

	if err := proc.Process(context.Background(), ReplyEvent{EventID: "evt-1", LeadID: leadID}); err == nil {
		t.Fatal("expected error")
	}
}
