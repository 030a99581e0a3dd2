package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monee/internal/core"
	"monee/internal/storage"
)

type failingPersister struct {
	loadErr error
	saveErr error
	saved   int
}

func (f *failingPersister) Load(context.Context) ([]core.Expense, error) { return nil, f.loadErr }
func (f *failingPersister) Save(context.Context, []core.Expense) error {
	f.saved++
	return f.saveErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.RecordEvent
	err    error
}

func (r *recordingSink) Publish(_ context.Context, ev core.RecordEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func draft(amount string, cat core.Category, date string) core.Draft {
	return core.Draft{Amount: decimal.RequireFromString(amount), Description: "thing", Category: cat, Date: date}
}

func TestAddThenReloadAfterRestart(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	s := New(ctx, storage.NewKVRecords(kv))
	assert.Empty(t, s.Records(ctx))

	rec, err := s.Add(ctx, draft("10", core.FoodAndDining, "2025-01-05"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	restarted := New(ctx, storage.NewKVRecords(kv))
	got := restarted.Load(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.True(t, rec.CreatedAt.Equal(got[0].CreatedAt))
	assert.True(t, decimal.NewFromInt(10).Equal(got[0].Amount))
}

func TestRemoveThenReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, storage.NewKVRecords(kv), WithIDGenerator(counterIDs()), WithClock(fixedClock()))

	a, err := s.Add(ctx, draft("1", core.Travel, "2025-01-01"))
	require.NoError(t, err)
	b, err := s.Add(ctx, draft("2", core.Travel, "2025-01-02"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, a.ID))

	got := New(ctx, storage.NewKVRecords(kv)).Records(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{}
	s := New(ctx, p)

	require.NoError(t, s.Remove(ctx, "missing"))
	assert.Zero(t, p.saved)
	assert.Empty(t, s.Records(ctx))

	kv := storage.NewMemory()
	s = New(ctx, storage.NewKVRecords(kv))
	_, err := s.Add(ctx, draft("3", core.Other, "2025-01-01"))
	require.NoError(t, err)
	before := s.Records(ctx)
	require.NoError(t, s.Remove(ctx, "missing"))
	assert.Equal(t, before, s.Records(ctx))
}

func TestInsertionOrderAndAssignedFields(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewKVRecords(storage.NewMemory()), WithIDGenerator(counterIDs()), WithClock(fixedClock()))

	first, _ := s.Add(ctx, draft("1", core.Other, "2025-03-01"))
	second, _ := s.Add(ctx, draft("2", core.Other, "2020-01-01"))

	got := s.Records(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "id-1", got[0].ID)
	assert.Equal(t, "id-2", got[1].ID)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, "2020-01-01", second.Date, "date is independent of createdAt")
}

func TestIDsStayUniqueAgainstLoadedRecords(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, storage.NewKVRecords(kv), WithIDGenerator(counterIDs()))
	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	require.NoError(t, err)

	// A fresh generator would hand out id-1 again.
	s = New(ctx, storage.NewKVRecords(kv), WithIDGenerator(counterIDs()))
	rec, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "id-2", rec.ID)
}

func TestMalformedPayloadLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, storage.KeyExpenses, "definitely not json"))

	s := New(ctx, storage.NewKVRecords(kv))
	assert.Empty(t, s.Load(ctx))

	// The store keeps working and overwrites the bad payload.
	_, err := s.Add(ctx, draft("4", core.Shopping, "2025-01-01"))
	require.NoError(t, err)
	assert.Len(t, New(ctx, storage.NewKVRecords(kv)).Records(ctx), 1)
}

func TestLoadErrorKeepsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{loadErr: errors.New("disk gone")}
	s := New(ctx, p)
	assert.Empty(t, s.Records(ctx))

	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Remove(ctx, "id-1"), ErrUnavailable)
	assert.Zero(t, p.saved)
}

// flakyPersister fails the first Load and then behaves like its inner persister.
type flakyPersister struct {
	inner    Persister
	failures int
}

func (f *flakyPersister) Load(ctx context.Context) ([]core.Expense, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database is locked")
	}
	return f.inner.Load(ctx)
}

func (f *flakyPersister) Save(ctx context.Context, records []core.Expense) error {
	return f.inner.Save(ctx, records)
}

func TestTransientLoadErrorDoesNotOverwriteStoredRecords(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewKVRecords(storage.NewMemory())
	seed := New(ctx, inner, WithIDGenerator(counterIDs()))
	for _, amount := range []string{"1", "2"} {
		_, err := seed.Add(ctx, draft(amount, core.Other, "2025-01-01"))
		require.NoError(t, err)
	}

	s := New(ctx, &flakyPersister{inner: inner, failures: 1}, WithIDGenerator(func() string { return "new" }))
	assert.Empty(t, s.Records(ctx))

	// The mutation re-reads the list before writing.
	_, err := s.Add(ctx, draft("3", core.Other, "2025-01-02"))
	require.NoError(t, err)

	stored, err := inner.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []string{"id-1", "id-2", "new"}, []string{stored[0].ID, stored[1].ID, stored[2].ID})
}

func TestClearReplacesUnreadableList(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{loadErr: errors.New("disk gone")}
	s := New(ctx, p)

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 1, p.saved)
}

// partialPersister returns decodable records alongside a malformed error.
type partialPersister struct {
	records []core.Expense
	saved   []core.Expense
}

func (p *partialPersister) Load(context.Context) ([]core.Expense, error) {
	return p.records, fmt.Errorf("%w: row x", storage.ErrMalformed)
}

func (p *partialPersister) Save(_ context.Context, records []core.Expense) error {
	p.saved = records
	return nil
}

func TestMalformedLoadKeepsDecodedRecords(t *testing.T) {
	ctx := context.Background()
	p := &partialPersister{records: []core.Expense{{ID: "good", Amount: decimal.NewFromInt(5), Category: core.Other, Date: "2025-01-01"}}}
	s := New(ctx, p)
	require.Len(t, s.Records(ctx), 1)

	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-02"))
	require.NoError(t, err)
	assert.Len(t, p.saved, 2)
}

func TestUniqueIDGivesUp(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewKVRecords(storage.NewMemory()), WithIDGenerator(func() string { return "same" }))

	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	require.NoError(t, err)
	_, err = s.Add(ctx, draft("2", core.Other, "2025-01-01"))
	assert.ErrorIs(t, err, ErrIDExhausted)
	assert.Len(t, s.Records(ctx), 1)
}

func TestSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{saveErr: errors.New("disk full")}
	s := New(ctx, p)

	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	require.Error(t, err)
	assert.Empty(t, s.Records(ctx))
	assert.ErrorIs(t, s.Clear(ctx), p.saveErr)
}

func TestAddRejectsInvalidDraft(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{}
	s := New(ctx, p)

	_, err := s.Add(ctx, core.Draft{Amount: decimal.NewFromInt(1), Category: core.Other, Date: "2025-01-01"})
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
	assert.Zero(t, p.saved)
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("broker down")}
	s := New(ctx, storage.NewKVRecords(storage.NewMemory()), WithSinks(sink))

	rec, err := s.Add(ctx, draft("7", core.Education, "2025-01-01"))
	require.NoError(t, err, "sink failures must not fail the mutation")
	require.NoError(t, s.Remove(ctx, rec.ID))
	require.NoError(t, s.Remove(ctx, rec.ID))
	require.NoError(t, s.Clear(ctx))

	require.Len(t, sink.events, 3)
	assert.Equal(t, core.EventCreated, sink.events[0].Type)
	assert.Equal(t, rec.ID, sink.events[0].ID)
	assert.Equal(t, core.EventDeleted, sink.events[1].Type)
	assert.Equal(t, core.EventCleared, sink.events[2].Type)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, storage.NewKVRecords(kv))
	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
		require.NoError(t, err)
	}
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Records(ctx))
	assert.Empty(t, New(ctx, storage.NewKVRecords(kv)).Records(ctx))
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, storage.NewKVRecords(kv))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, New(ctx, storage.NewKVRecords(kv)).Records(ctx), 20)
}

func TestRecordsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewKVRecords(storage.NewMemory()))
	_, err := s.Add(ctx, draft("1", core.Other, "2025-01-01"))
	require.NoError(t, err)

	got := s.Records(ctx)
	got[0].Description = "tampered"
	assert.Equal(t, "thing", s.Records(ctx)[0].Description)
}
