package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/docforge/internal/models"
)

// ErrInvalidEvent is returned when an event fails validation.
var ErrInvalidEvent = errors.New("invalid event")

const (
	defaultPageSize = 100
	eventColumns    = `id, timestamp, type, entity_type, entity_id, payload_json, metadata_json`
)

// EventRepository stores template, cache and system events.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventFilter selects events. Zero values leave a field unfiltered.
type EventFilter struct {
	Template    string              // template events for this name only
	Types       []models.EventType  // any of these types
	EntityTypes []models.EntityType // any of these entity types
	Since       time.Time           // at or after (inclusive)
	Until       time.Time           // before (exclusive)
	After       string              // cursor: events ordered after this event ID
	Limit       int
}

// EventPage is one page of events in log order.
type EventPage struct {
	Events     []*models.Event
	NextCursor string // empty on the last page
}

// Create validates and appends an event, filling in ID and timestamp.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	payload := nullableText(string(event.Payload))
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = nullableText(string(data))
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Timestamp.Format(timestampLayout),
		string(event.Type),
		string(event.EntityType),
		event.EntityID,
		payload,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", event.Type, err)
	}
	return nil
}

// Query returns events matching filter in log order (timestamp, then ID),
// starting after filter.After. NextCursor is set when more events match.
func (r *EventRepository) Query(ctx context.Context, filter EventFilter) (*EventPage, error) {
	limit := pageSize(filter.Limit)
	where, args := filter.where()
	events, err := r.list(ctx,
		`SELECT `+eventColumns+` FROM events`+where+` ORDER BY timestamp, id LIMIT ?`,
		append(args, limit+1)...)
	if err != nil {
		return nil, err
	}

	page := &EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.NextCursor = events[limit-1].ID
	}
	return page, nil
}

// Latest returns the most recent events matching filter, oldest first.
// filter.After is ignored.
func (r *EventRepository) Latest(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	filter.After = ""
	where, args := filter.where()
	events, err := r.list(ctx,
		`SELECT `+eventColumns+` FROM events`+where+` ORDER BY timestamp DESC, id DESC LIMIT ?`,
		append(args, pageSize(filter.Limit))...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// CountByType returns the number of stored events per event type.
func (r *EventRepository) CountByType(ctx context.Context) (map[models.EventType]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventType]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[models.EventType(eventType)] = count
	}
	return counts, rows.Err()
}

func (f EventFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Template != "" {
		clauses = append(clauses, `entity_type = ? AND entity_id = ?`)
		args = append(args, string(models.EntityTypeTemplate), f.Template)
	}
	if len(f.Types) > 0 {
		clauses = append(clauses, `type IN (`+placeholders(len(f.Types))+`)`)
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.EntityTypes) > 0 {
		clauses = append(clauses, `entity_type IN (`+placeholders(len(f.EntityTypes))+`)`)
		for _, t := range f.EntityTypes {
			args = append(args, string(t))
		}
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, `timestamp >= ?`)
		args = append(args, f.Since.UTC().Format(timestampLayout))
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, `timestamp < ?`)
		args = append(args, f.Until.UTC().Format(timestampLayout))
	}
	if f.After != "" {
		clauses = append(clauses, `(timestamp, id) > (SELECT timestamp, id FROM events WHERE id = ?)`)
		args = append(args, f.After)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) scan(rows *sql.Rows) (*models.Event, error) {
	var (
		event                   models.Event
		timestamp, kind, entity string
		payload, metadata       sql.NullString
	)
	if err := rows.Scan(&event.ID, &timestamp, &kind, &entity, &event.EntityID, &payload, &metadata); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event.Type = models.EventType(kind)
	event.EntityType = models.EntityType(entity)

	parsed, err := time.Parse(timestampLayout, timestamp)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad timestamp %q: %w", event.ID, timestamp, err)
	}
	event.Timestamp = parsed

	if payload.Valid {
		event.Payload = json.RawMessage(payload.String)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			r.db.logger.Warn().Err(err).Str("event_id", event.ID).Msg("ignoring unreadable event metadata")
		}
	}
	return &event, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
