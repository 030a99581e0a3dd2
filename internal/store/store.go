// Package store owns the expense record list and keeps it persisted.
//
// The Store is the only mutation surface for records: Add, Remove and Clear
// run a load-modify-persist sequence under a lock, so concurrent callers
// never lose updates. Readers get copies.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"monee/internal/core"
	applog "monee/internal/log"
	"monee/internal/storage"
)

var (
	// ErrUnavailable is returned by mutations while the persisted list cannot be read.
	ErrUnavailable = errors.New("persisted records are unavailable")
	// ErrIDExhausted is returned when the id generator keeps producing taken ids.
	ErrIDExhausted = errors.New("could not generate a unique record id")
)

// maxIDAttempts bounds the draws in uniqueID.
const maxIDAttempts = 16

// Persister is the durable storage port for the record list. Load may return
// the decodable records together with an error wrapping storage.ErrMalformed.
type Persister interface {
	Load(ctx context.Context) ([]core.Expense, error)
	Save(ctx context.Context, records []core.Expense) error
}

// EventSink receives a notification after every successful mutation.
type EventSink interface {
	Publish(ctx context.Context, ev core.RecordEvent) error
}

type Store struct {
	mu        sync.Mutex
	persister Persister
	records   []core.Expense
	loaded    bool
	now       func() time.Time
	newID     func() string
	sinks     []EventSink
	logger    *applog.Logger
}

type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithSinks registers event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(s *Store) { s.sinks = append(s.sinks, sinks...) }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(applog.ComponentStore) }
}

// New creates a store and loads the persisted records once.
func New(ctx context.Context, p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    applog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Load(ctx)
	return s
}

// Load re-reads the persisted list. Malformed data is treated as "no data",
// or as the records that could still be decoded. Any other failure keeps the
// previous list, and Add and Remove return ErrUnavailable until a read succeeds.
func (s *Store) Load(ctx context.Context) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return s.snapshot()
}

func (s *Store) loadLocked(ctx context.Context) error {
	records, err := s.persister.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrMalformed):
		s.logger.WarnContext(ctx, "Persisted records malformed, keeping what could be decoded",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldRecordCount, len(records),
			applog.FieldError, err)
	default:
		s.loaded = false
		s.logger.ErrorContext(ctx, "Persisted records unreadable",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.records = records
	s.loaded = true
	s.logger.DebugContext(ctx, "Records loaded", applog.FieldRecordCount, len(records))
	return nil
}

// ensureLoadedLocked retries the initial read before a mutation.
func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.loadLocked(ctx)
}

// Records returns a copy of the current list in insertion order.
func (s *Store) Records(_ context.Context) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Add validates the draft, assigns id and creation time, and persists the list.
func (s *Store) Add(ctx context.Context, d core.Draft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.mu.Lock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		s.mu.Unlock()
		return core.Expense{}, err
	}
	id, err := s.uniqueID()
	if err != nil {
		s.mu.Unlock()
		return core.Expense{}, err
	}
	rec := core.Expense{
		ID:          id,
		Amount:      d.Amount,
		Description: d.Description,
		Category:    d.Category,
		Date:        d.Date,
		CreatedAt:   s.now(),
	}
	updated := append(s.snapshot(), rec)
	if err := s.persister.Save(ctx, updated); err != nil {
		s.mu.Unlock()
		return core.Expense{}, fmt.Errorf("save records: %w", err)
	}
	s.records = updated
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Expense created", applog.NewFields().
		WithOperation(applog.OpCreate).
		WithRecord(rec.ID, rec.Amount.String(), rec.Category.String(), rec.Date).
		ToSlice()...)
	s.publish(ctx, core.NewRecordEvent(core.EventCreated, rec, rec.CreatedAt))
	return rec, nil
}

// Remove deletes the record with the given id. An unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Remove of unknown record ignored", applog.FieldRecordID, id)
		return nil
	}
	removed := s.records[idx]
	updated := make([]core.Expense, 0, len(s.records)-1)
	updated = append(updated, s.records[:idx]...)
	updated = append(updated, s.records[idx+1:]...)
	if err := s.persister.Save(ctx, updated); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save records: %w", err)
	}
	s.records = updated
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Expense deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldRecordID, id)
	s.publish(ctx, core.NewRecordEvent(core.EventDeleted, removed, s.now()))
	return nil
}

// Clear removes every record. It also replaces an unreadable list.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.persister.Save(ctx, []core.Expense{}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save records: %w", err)
	}
	n := len(s.records)
	s.records = nil
	s.loaded = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Expenses cleared",
		applog.FieldOperation, applog.OpClear,
		applog.FieldRecordCount, n)
	s.publish(ctx, core.RecordEvent{Type: core.EventCleared, Timestamp: s.now()})
	return nil
}

func (s *Store) snapshot() []core.Expense {
	out := make([]core.Expense, len(s.records))
	copy(out, s.records)
	return out
}

// uniqueID draws ids until one is not already in the list.
func (s *Store) uniqueID() (string, error) {
	for range maxIDAttempts {
		id := s.newID()
		taken := false
		for _, r := range s.records {
			if r.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func (s *Store) publish(ctx context.Context, ev core.RecordEvent) {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish record event",
				applog.FieldEventType, string(ev.Type),
				applog.FieldRecordID, ev.ID,
				applog.FieldError, err)
		}
	}
}
