package leads

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(&models.Lead{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedLead(t *testing.T, conn *gorm.DB, mutate func(*models.Lead)) *models.Lead {
	t.Helper()
	email := "ana@example.com"
	step := 1
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	campaignID := uuid.New()
	lead := &models.Lead{
		ID:            uuid.New(),
		Email:         &email,
		Status:        enums.LeadContacted,
		CampaignID:    &campaignID,
		NextEmailStep: &step,
		NextEmailAt:   &at,
	}
	if mutate != nil {
		mutate(lead)
	}
	if err := conn.Create(lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func TestListDueFilters(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	due := seedLead(t, conn, nil)
	seedLead(t, conn, func(l *models.Lead) { // not yet due
		later := now.Add(time.Hour)
		l.NextEmailAt = &later
	})
	seedLead(t, conn, func(l *models.Lead) { // stopped
		l.EmailSequenceStopped = true
	})
	seedLead(t, conn, func(l *models.Lead) { // no cursor
		l.NextEmailAt = nil
		l.NextEmailStep = nil
	})
	seedLead(t, conn, func(l *models.Lead) { // no address
		empty := ""
		l.Email = &empty
	})

	rows, err := repo.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != due.ID {
		t.Fatalf("expected only the due lead, got %d rows", len(rows))
	}
}

func TestListDueOldestFirst(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	newer := seedLead(t, conn, func(l *models.Lead) {
		at := now.Add(-time.Hour)
		l.NextEmailAt = &at
	})
	older := seedLead(t, conn, func(l *models.Lead) {
		at := now.Add(-2 * time.Hour)
		l.NextEmailAt = &at
	})

	rows, err := repo.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != older.ID || rows[1].ID != newer.ID {
		t.Fatal("expected oldest-due lead first")
	}
}

func TestAdvanceCursorSkipsStoppedLead(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	lead := seedLead(t, conn, nil)
	advanced, err := repo.AdvanceCursor(ctx, lead.ID, 2, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}
	if !advanced {
		t.Fatal("expected advance on live lead")
	}

	stopped := seedLead(t, conn, func(l *models.Lead) { l.EmailSequenceStopped = true })
	advanced, err = repo.AdvanceCursor(ctx, stopped.ID, 2, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("AdvanceCursor stopped: %v", err)
	}
	if advanced {
		t.Fatal("stopped lead's cursor must not move")
	}
}

func TestStopIsMonotonicAndClearsCursor(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	lead := seedLead(t, conn, nil)
	found, err := repo.Stop(ctx, lead.ID, enums.StopReasonReply, now)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !found {
		t.Fatal("expected lead found")
	}

	var row models.Lead
	if err := conn.First(&row, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !row.EmailSequenceStopped || row.NextEmailStep != nil || row.NextEmailAt != nil {
		t.Fatalf("halt did not clear cursor %+v", row)
	}
	if row.LastEmailStatus == nil || *row.LastEmailStatus != "reply" {
		t.Fatalf("unexpected last status %v", row.LastEmailStatus)
	}
	if row.LastEmailReplyAt == nil {
		t.Fatal("reply stop must stamp the reply time")
	}

	// Stopping again with a different reason converges, still stopped.
	found, err = repo.Stop(ctx, lead.ID, enums.StopReasonManual, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if !found {
		t.Fatal("second stop should still find the lead")
	}
	if err := conn.First(&row, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !row.EmailSequenceStopped {
		t.Fatal("halt must be monotonic")
	}
}

func TestStopUnknownLead(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	found, err := repo.Stop(context.Background(), uuid.New(), enums.StopReasonManual, time.Now().UTC())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if found {
		t.Fatal("unknown lead must report not found")
	}
}

func TestMarkRepliedRecordsMetadata(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	lead := seedLead(t, conn, nil)
	err := repo.MarkReplied(ctx, lead.ID, ReplyFields{
		FromEmail: "ana@example.com",
		Subject:   "Re: Quick question",
		Snippet:   "Happy to chat",
	}, now)
	if err != nil {
		t.Fatalf("MarkReplied: %v", err)
	}

	var row models.Lead
	if err := conn.First(&row, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Status != enums.LeadReplied {
		t.Fatalf("status = %s, want replied", row.Status)
	}
	if row.LastReplyFrom == nil || *row.LastReplyFrom != "ana@example.com" {
		t.Fatalf("reply from not recorded: %v", row.LastReplyFrom)
	}
	if row.LastReplyAt == nil || !row.LastReplyAt.Equal(now) {
		t.Fatalf("reply time not recorded: %v", row.LastReplyAt)
	}
}

func TestCompleteSequenceClearsCursor(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	lead := seedLead(t, conn, nil)
	completed, err := repo.CompleteSequence(ctx, lead.ID)
	if err != nil {
		t.Fatalf("CompleteSequence: %v", err)
	}
	if !completed {
		t.Fatal("expected completion to apply")
	}

	var row models.Lead
	if err := conn.First(&row, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.NextEmailStep != nil || row.NextEmailAt != nil {
		t.Fatal("cursor must be cleared")
	}
	if row.LastEmailStatus == nil || *row.LastEmailStatus != "sequence_complete" {
		t.Fatalf("unexpected status %v", row.LastEmailStatus)
	}
	if row.EmailSequenceStopped {
		t.Fatal("completion is not a stop")
	}
}

func TestCompleteSequenceSkipsStoppedLead(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	lead := seedLead(t, conn, nil)
	if _, err := repo.Stop(ctx, lead.ID, enums.StopReasonReply, now); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	completed, err := repo.CompleteSequence(ctx, lead.ID)
	if err != nil {
		t.Fatalf("CompleteSequence: %v", err)
	}
	if completed {
		t.Fatal("completion must not apply to a stopped lead")
	}

	var row models.Lead
	if err := conn.First(&row, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.LastEmailStatus == nil || *row.LastEmailStatus != "reply" {
		t.Fatalf("stop status overwritten: got %v, want reply", row.LastEmailStatus)
	}
	if !row.EmailSequenceStopped {
		t.Fatal("stopped flag must survive")
	}
}
