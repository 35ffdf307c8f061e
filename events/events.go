// Package events publishes store change notifications to NATS.
//
// An Emitter is nil-safe: every method on a nil *Emitter is a no-op, so
// callers wire it unconditionally and leave it nil when NATS is disabled.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/validation"
)

// DefaultSubjectPrefix is prepended to every event type.
const DefaultSubjectPrefix = "ontogate.events"

// Event types.
const (
	TypeFilesLoaded         = "files.loaded"
	TypeStoreCleared        = "store.cleared"
	TypeValidationCompleted = "validation.completed"
	TypeTriplesAdded        = "triples.added"
	TypeTriplesDeleted      = "triples.deleted"
)

// Event is the JSON envelope published for every notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Conn is the subset of *nats.Conn the emitter needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Emitter publishes events under a subject prefix.
type Emitter struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// New wraps an existing connection. An empty prefix uses
// DefaultSubjectPrefix.
func New(conn Conn, prefix string, logger *slog.Logger) *Emitter {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{conn: conn, prefix: prefix, logger: logger}
}

// Connect dials NATS and returns an emitter that owns the connection.
func Connect(url, prefix string, logger *slog.Logger) (*Emitter, error) {
	nc, err := nats.Connect(url,
		nats.Name("ontogate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	e := New(nc, prefix, logger)
	e.nc = nc
	return e, nil
}

// Subject returns the full subject for an event type.
func (e *Emitter) Subject(eventType string) string {
	return e.prefix + "." + eventType
}

// Emit publishes data as an event of the given type. Publish failures are
// logged and returned.
func (e *Emitter) Emit(ctx context.Context, eventType string, data any) error {
	if e == nil || e.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := e.Subject(eventType)
	if err := e.conn.Publish(subject, payload); err != nil {
		e.logger.Warn("Failed to publish event", "subject", subject, "error", err)
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	e.logger.Debug("Published event", "subject", subject)
	return nil
}

// FilesLoadedData is the payload of files.loaded.
type FilesLoadedData struct {
	Successful []string          `json:"successful_files"`
	Failed     map[string]string `json:"failed_files,omitempty"`
	Triples    int               `json:"triples"`
}

// FilesLoaded implements loader.Observer.
func (e *Emitter) FilesLoaded(ctx context.Context, outcome loader.Outcome) {
	_ = e.Emit(ctx, TypeFilesLoaded, FilesLoadedData{
		Successful: outcome.SuccessfulPaths(),
		Failed:     outcome.Errors(),
		Triples:    outcome.Triples(),
	})
}

// StoreCleared implements loader.Observer.
func (e *Emitter) StoreCleared(ctx context.Context, files int) {
	_ = e.Emit(ctx, TypeStoreCleared, map[string]int{"files_cleared": files})
}

// ValidationCompleted implements validation.Observer.
func (e *Emitter) ValidationCompleted(ctx context.Context, report *validation.Report) {
	_ = e.Emit(ctx, TypeValidationCompleted, report.Summary())
}

// TriplesChanged announces a direct triple insert or delete.
func (e *Emitter) TriplesChanged(ctx context.Context, eventType string, count int) {
	_ = e.Emit(ctx, eventType, map[string]int{"count": count})
}

// Close drains the owned connection, if any.
func (e *Emitter) Close() error {
	if e == nil || e.nc == nil {
		return nil
	}
	return e.nc.Drain()
}
