// Package worker contains the consumers of record events.
package worker

import (
	"context"
	"sync"
	"time"

	"monee/internal/core"
	applog "monee/internal/log"
	"monee/internal/store"
)

// AuditWorker writes one structured log line per record event and keeps
// running counts per event type.
type AuditWorker struct {
	logger  *applog.Logger
	forward []store.EventSink

	mu       sync.Mutex
	counts   map[core.EventType]int
	lastSeen time.Time
}

func NewAuditWorker(logger *applog.Logger, forward ...store.EventSink) *AuditWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &AuditWorker{
		logger:  logger.WithComponent(applog.ComponentWorker),
		forward: forward,
		counts:  make(map[core.EventType]int),
	}
}

// HandleEvent records a consumed event. Unknown event types are logged and
// acknowledged so they do not loop through the queue.
func (w *AuditWorker) HandleEvent(ctx context.Context, ev core.RecordEvent) error {
	switch ev.Type {
	case core.EventCreated, core.EventDeleted, core.EventCleared:
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown record event", applog.FieldEventType, string(ev.Type))
		return nil
	}

	w.mu.Lock()
	w.counts[ev.Type]++
	w.lastSeen = ev.Timestamp
	w.mu.Unlock()

	fields := applog.NewFields().WithOperation(applog.OpConsume)
	fields[applog.FieldEventType] = string(ev.Type)
	if ev.Type != core.EventCleared {
		fields.WithRecord(ev.ID, ev.Amount.String(), ev.Category.String(), ev.Date)
	}
	w.logger.InfoContext(ctx, "Record event", fields.ToSlice()...)

	for _, sink := range w.forward {
		if err := sink.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns a snapshot of the number of events seen per type.
func (w *AuditWorker) Counts() map[core.EventType]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[core.EventType]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

// PeriodicSummary logs the running counts every interval until ctx is done.
func (w *AuditWorker) PeriodicSummary(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			counts := w.Counts()
			w.mu.Lock()
			last := w.lastSeen
			w.mu.Unlock()
			w.logger.InfoContext(ctx, "Record event summary",
				"created", counts[core.EventCreated],
				"deleted", counts[core.EventDeleted],
				"cleared", counts[core.EventCleared],
				"last_event", last)
		}
	}
}
