// Package cli provides the event log commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/db"
	"github.com/opencode-ai/docforge/internal/models"
)

var (
	eventsTemplate string
	eventsType     string
	eventsLimit    int
	eventsSince    string
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsTemplate, "template", "", "only events for this template")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "only events of this type (e.g. render.completed)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum events to show")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "only events after a duration ago (1h, 2d) or a timestamp")
	eventsCmd.Flags().BoolVarP(&watchMode, "follow", "F", false, "stream new events (requires --jsonl)")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the template event log",
	Long:  "Show recorded load, render, save and cache events, or stream them with --follow --jsonl.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := MustBeJSONLForWatch(); err != nil {
			return err
		}
		since, err := ParseSince(eventsSince)
		if err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewEventRepository(database)

		if watchMode {
			config := DefaultStreamConfig()
			config.Since = since
			config.IncludeExisting = since != nil
			config.Template = eventsTemplate
			if eventsType != "" {
				config.EventTypes = []models.EventType{models.EventType(eventsType)}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return NewEventStreamer(repo, cmd.OutOrStdout(), config).Stream(ctx)
		}

		filter := db.EventFilter{Template: eventsTemplate, Limit: eventsLimit}
		if since != nil {
			filter.Since = *since
		}
		if eventsType != "" {
			filter.Types = []models.EventType{models.EventType(eventsType)}
		}

		events, err := repo.Latest(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No events recorded.")
			return nil
		}

		rows := make([][]string, 0, len(events))
		for _, event := range events {
			rows = append(rows, []string{
				formatWhen(event.Timestamp),
				string(event.Type),
				event.EntityID,
				summarizePayload(event),
			})
		}
		return writeTable(out, []string{"WHEN", "TYPE", "ENTITY", "DETAILS"}, rows)
	},
}

// summarizePayload renders the interesting payload fields of an event.
func summarizePayload(event *models.Event) string {
	if len(event.Payload) == 0 {
		return "-"
	}
	switch event.Type {
	case models.EventTypeTemplateLoaded:
		var p models.TemplateLoadedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return p.SourcePath
		}
	case models.EventTypeTemplateSaved:
		var p models.TemplateSavedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return p.Path
		}
	case models.EventTypeRenderCompleted:
		var p models.RenderCompletedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf("%s, %d/%d sections", p.Format, p.RenderedSections, p.SectionCount)
		}
	case models.EventTypeTemplateLoadFailed, models.EventTypeRenderFailed:
		var p models.FailurePayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return p.Error
		}
	case models.EventTypeCacheCleared:
		var p models.CacheClearedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf("%d evicted", p.Evicted)
		}
	}
	return string(event.Payload)
}

// ConnectionStatus describes the event stream's connection to the database.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusReconnecting ConnectionStatus = "reconnecting"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// ReconnectConfig controls retries after failed polls.
type ReconnectConfig struct {
	Enabled           bool
	MaxAttempts       int // 0 = unlimited
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	OnStatusChange    func(status ConnectionStatus, attempt int, nextRetry time.Duration, err error)
}

// DefaultReconnectConfig returns unlimited retries with exponential backoff.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:           true,
		MaxAttempts:       0,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// StreamConfig configures an EventStreamer.
type StreamConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	IncludeExisting bool       // replay events since Since before following
	Since           *time.Time // replay start; ignored unless IncludeExisting
	EntityTypes     []models.EntityType
	EventTypes      []models.EventType
	Template        string // only events for this template
	Reconnect       ReconnectConfig
}

// DefaultStreamConfig returns the default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
		Reconnect:    DefaultReconnectConfig(),
	}
}

// EventStreamer polls the event log and writes new events as JSON lines.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
	now    func() time.Time
}

// NewEventStreamer creates an EventStreamer.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultStreamConfig().BatchSize
	}
	return &EventStreamer{repo: repo, out: out, config: config, now: time.Now}
}

// Stream writes events until ctx is done. Cancellation is not an error.
func (s *EventStreamer) Stream(ctx context.Context) error {
	var since *time.Time
	if s.config.IncludeExisting && s.config.Since != nil {
		since = s.config.Since
	} else {
		now := s.now().UTC()
		since = &now
	}

	cursor := ""
	attempt := 0
	var backoff time.Duration
	s.setStatus(ConnectionStatusConnected, 0, 0, nil)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		events, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			if ctx.Err() != nil {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, nil)
				return nil
			}
			if !s.config.Reconnect.Enabled {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, err)
				return fmt.Errorf("poll events: %w", err)
			}

			attempt++
			if limit := s.config.Reconnect.MaxAttempts; limit > 0 && attempt > limit {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, err)
				return fmt.Errorf("max reconnection attempts (%d) exceeded: %w", limit, err)
			}
			backoff = s.calculateBackoff(attempt, backoff)
			s.setStatus(ConnectionStatusReconnecting, attempt, backoff, err)

			select {
			case <-ctx.Done():
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, nil)
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		if attempt > 0 {
			attempt = 0
			backoff = 0
			s.setStatus(ConnectionStatusConnected, 0, 0, nil)
		}

		for _, event := range events {
			if err := s.writeEvent(event); err != nil {
				return err
			}
		}
		cursor = next

		if len(events) >= s.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			s.setStatus(ConnectionStatusDisconnected, 0, 0, nil)
			return nil
		case <-ticker.C:
		}
	}
}

// poll fetches up to BatchSize events after cursor. The returned cursor is
// the last event read, or the input cursor when nothing new arrived.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	if s.repo == nil {
		return nil, cursor, errors.New("event repository is required")
	}

	filter := db.EventFilter{
		Template:    s.config.Template,
		Types:       s.config.EventTypes,
		EntityTypes: s.config.EntityTypes,
		After:       cursor,
		Limit:       s.config.BatchSize,
	}
	if since != nil {
		filter.Since = *since
	}

	page, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, cursor, err
	}
	if len(page.Events) == 0 {
		return nil, cursor, nil
	}
	return page.Events, page.Events[len(page.Events)-1].ID, nil
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	_, err = s.out.Write(data)
	return err
}

func (s *EventStreamer) calculateBackoff(attempt int, current time.Duration) time.Duration {
	cfg := s.config.Reconnect
	if attempt <= 1 || current <= 0 {
		return cfg.InitialBackoff
	}
	next := time.Duration(float64(current) * cfg.BackoffMultiplier)
	if cfg.MaxBackoff > 0 && next > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return next
}

func (s *EventStreamer) setStatus(status ConnectionStatus, attempt int, nextRetry time.Duration, err error) {
	if s.config.Reconnect.OnStatusChange != nil {
		s.config.Reconnect.OnStatusChange(status, attempt, nextRetry, err)
	}
}

// ParseSince parses a relative duration ("1h", "2d") or an absolute
// timestamp into a UTC time. An empty string yields nil.
func ParseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if d, err := parseDurationWithDays(value); err == nil {
		t := time.Now().Add(-d).UTC()
		return &t, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid --since value %q: use a duration (1h, 2d) or a timestamp", value)
}

// parseDurationWithDays extends time.ParseDuration with a "d" (day) suffix.
func parseDurationWithDays(value string) (time.Duration, error) {
	if strings.HasSuffix(value, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(value, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(value)
}
