package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monee/internal/core"
	applog "monee/internal/log"
)

type sinkFunc func(context.Context, core.RecordEvent) error

func (f sinkFunc) Publish(ctx context.Context, ev core.RecordEvent) error { return f(ctx, ev) }

func logger(buf *bytes.Buffer) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = buf
	cfg.Level = slog.LevelDebug
	return applog.New(cfg)
}

func TestHandleEventCountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	w := NewAuditWorker(logger(&buf))
	ctx := context.Background()
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

	created := core.RecordEvent{Type: core.EventCreated, ID: "r1", Amount: decimal.RequireFromString("4.20"), Category: core.Groceries, Date: "2025-01-05", Timestamp: at}
	require.NoError(t, w.HandleEvent(ctx, created))
	require.NoError(t, w.HandleEvent(ctx, core.RecordEvent{Type: core.EventDeleted, ID: "r1", Timestamp: at}))
	require.NoError(t, w.HandleEvent(ctx, core.RecordEvent{Type: core.EventCleared, Timestamp: at}))
	require.NoError(t, w.HandleEvent(ctx, core.RecordEvent{Type: "renamed", Timestamp: at}))

	assert.Equal(t, map[core.EventType]int{
		core.EventCreated: 1,
		core.EventDeleted: 1,
		core.EventCleared: 1,
	}, w.Counts())

	out := buf.String()
	assert.Contains(t, out, "record_id=r1")
	assert.Contains(t, out, "category=Groceries")
	assert.Contains(t, out, "event_type=cleared")
	assert.Contains(t, out, "Ignoring unknown record event")
}

func TestHandleEventForwardErrorRequeues(t *testing.T) {
	boom := errors.New("metrics down")
	var forwarded int
	w := NewAuditWorker(nil, sinkFunc(func(context.Context, core.RecordEvent) error {
		forwarded++
		return boom
	}))

	err := w.HandleEvent(context.Background(), core.RecordEvent{Type: core.EventCreated, ID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, forwarded)
}

func TestCountsIsSnapshot(t *testing.T) {
	w := NewAuditWorker(nil)
	require.NoError(t, w.HandleEvent(context.Background(), core.RecordEvent{Type: core.EventCleared}))
	c := w.Counts()
	c[core.EventCleared] = 99
	assert.Equal(t, 1, w.Counts()[core.EventCleared])
}

func TestPeriodicSummaryStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	w := NewAuditWorker(logger(&buf))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := w.PeriodicSummary(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), "Record event summary")
}
