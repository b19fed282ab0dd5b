package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/hotplug"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed width so that created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Filter controls which events to return.
type Filter struct {
	Type     hotplug.EventType // optional: added or removed
	CameraID string            // optional
	Since    time.Time         // optional: only events at or after Since
	Limit    int               // default 50, max 200
	Offset   int
}

// ListResult contains a page of events, most recent first.
type ListResult struct {
	Events []hotplug.Event `json:"events"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Repository defines the camera event store.
type Repository interface {
	Create(ctx context.Context, ev *hotplug.Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts ev. The ID and Timestamp are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, ev *hotplug.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	devnums := ev.Devnums
	if devnums == nil {
		devnums = []uint64{}
	}
	devnumsJSON, err := json.Marshal(devnums)
	if err != nil {
		return fmt.Errorf("marshalling devnums: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO camera_events (id, type, camera_id, devnums, model, pipeline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.CameraID, string(devnumsJSON),
		nullableString(ev.Props.Model), nullableString(ev.Props.Pipeline),
		ev.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting camera event: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.CameraID != "" {
		conditions = append(conditions, "camera_id = ?")
		args = append(args, filter.CameraID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM camera_events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting camera events: %w", err)
	}

	query := "SELECT id, type, camera_id, devnums, model, pipeline, created_at FROM camera_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying camera events: %w", err)
	}
	defer rows.Close()

	events := []hotplug.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating camera events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanEvent(rows *sql.Rows) (hotplug.Event, error) {
	var ev hotplug.Event
	var typ, devnumsJSON, createdAt string
	var model, pipeline sql.NullString

	if err := rows.Scan(&ev.ID, &typ, &ev.CameraID, &devnumsJSON, &model, &pipeline, &createdAt); err != nil {
		return ev, fmt.Errorf("scanning camera event: %w", err)
	}
	ev.Type = hotplug.EventType(typ)
	ev.Props = camera.Properties{Model: model.String, Pipeline: pipeline.String}

	if err := json.Unmarshal([]byte(devnumsJSON), &ev.Devnums); err != nil {
		return ev, fmt.Errorf("decoding devnums of event %s: %w", ev.ID, err)
	}

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return ev, fmt.Errorf("parsing camera event timestamp %q: %w", createdAt, err)
	}
	ev.Timestamp = ts
	return ev, nil
}

// Sink adapts a Repository to hotplug.Sink.
type Sink struct {
	Repo Repository
}

// Handle implements hotplug.Sink.
func (s Sink) Handle(ctx context.Context, ev hotplug.Event) error {
	return s.Repo.Create(ctx, &ev)
}
