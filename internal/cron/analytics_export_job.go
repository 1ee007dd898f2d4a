package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

const (
	analyticsExportBatch  = 500
	analyticsCursorKey    = "of:analytics:email_events_cursor"
	analyticsInitialSweep = 30 * 24 * time.Hour
)

type logSource interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]models.EmailLog, error)
}

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type cursorStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type AnalyticsExportJobParams struct {
	Logger   *logger.Logger
	Logs     logSource
	BigQuery rowInserter
	Cursor   cursorStore
	Table    string
}

// NewAnalyticsExportJob builds the job that streams new email log rows into
// BigQuery. The export cursor lives in Redis; a crashed run re-exports its
// last batch, which the warehouse side dedupes on log_id.
func NewAnalyticsExportJob(params AnalyticsExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Logs == nil {
		return nil, fmt.Errorf("log repository required")
	}
	if params.BigQuery == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if params.Cursor == nil {
		return nil, fmt.Errorf("cursor store required")
	}
	if params.Table == "" {
		return nil, fmt.Errorf("export table required")
	}
	return &analyticsExportJob{
		logg:   params.Logger,
		logs:   params.Logs,
		bq:     params.BigQuery,
		cursor: params.Cursor,
		table:  params.Table,
		now:    time.Now,
	}, nil
}

type analyticsExportJob struct {
	logg   *logger.Logger
	logs   logSource
	bq     rowInserter
	cursor cursorStore
	table  string
	now    func() time.Time
}

// emailEventRow is the BigQuery shape of one email log entry.
type emailEventRow struct {
	LogID      string    `bigquery:"log_id"`
	LeadID     string    `bigquery:"lead_id"`
	CampaignID string    `bigquery:"campaign_id"`
	StepNumber int       `bigquery:"step_number"`
	Direction  string    `bigquery:"direction"`
	Event      string    `bigquery:"event"`
	ToEmail    string    `bigquery:"to_email"`
	CreatedAt  time.Time `bigquery:"created_at"`
}

func (j *analyticsExportJob) Name() string { return "analytics-export" }

func (j *analyticsExportJob) Run(ctx context.Context) error {
	since, err := j.loadCursor(ctx)
	if err != nil {
		return fmt.Errorf("analytics export: %w", err)
	}

	exported := 0
	for {
		batch, err := j.logs.ListSince(ctx, since, analyticsExportBatch)
		if err != nil {
			return fmt.Errorf("analytics export: listing log rows: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		rows := make([]any, 0, len(batch))
		for _, entry := range batch {
			rows = append(rows, toEventRow(entry))
		}
		if err := j.bq.InsertRows(ctx, j.table, rows); err != nil {
			return fmt.Errorf("analytics export: inserting rows: %w", err)
		}

		since = batch[len(batch)-1].CreatedAt
		if err := j.saveCursor(ctx, since); err != nil {
			return fmt.Errorf("analytics export: %w", err)
		}
		exported += len(batch)

		if len(batch) < analyticsExportBatch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rows_exported": exported,
		"cursor":        since,
	})
	j.logg.Info(logCtx, "analytics export complete")
	return nil
}

func (j *analyticsExportJob) loadCursor(ctx context.Context) (time.Time, error) {
	value, err := j.cursor.Get(ctx, analyticsCursorKey)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return j.now().UTC().Add(-analyticsInitialSweep), nil
		}
		return time.Time{}, fmt.Errorf("reading cursor: %w", err)
	}
	cursor, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cursor %q: %w", value, err)
	}
	return cursor, nil
}

func (j *analyticsExportJob) saveCursor(ctx context.Context, cursor time.Time) error {
	if err := j.cursor.Set(ctx, analyticsCursorKey, cursor.UTC().Format(time.RFC3339Nano), 0); err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

func toEventRow(entry models.EmailLog) emailEventRow {
	row := emailEventRow{
		LogID:     entry.ID.String(),
		LeadID:    entry.LeadID.String(),
		Direction: string(entry.Direction),
		Event:     string(entry.Event),
		CreatedAt: entry.CreatedAt,
	}
	if entry.CampaignID != nil {
		row.CampaignID = entry.CampaignID.String()
	}
	if entry.StepNumber != nil {
		row.StepNumber = *entry.StepNumber
	}
	if entry.ToEmail != nil {
		row.ToEmail = *entry.ToEmail
	}
	return row
}
