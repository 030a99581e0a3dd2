package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monee/internal/core"
)

func sampleRecords() []core.Expense {
	at := time.Date(2025, 2, 10, 9, 30, 15, 123000000, time.UTC)
	return []core.Expense{
		{ID: "b", Amount: decimal.RequireFromString("20"), Description: "dinner", Category: core.FoodAndDining, Date: "2025-02-10", CreatedAt: at},
		{ID: "a", Amount: decimal.RequireFromString("5.25"), Description: "bus", Category: core.Transportation, Date: "2025-02-15", CreatedAt: at.Add(time.Minute)},
	}
}

func assertSameRecords(t *testing.T, want, got []core.Expense) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "amount %s != %s", want[i].Amount, got[i].Amount)
		assert.Equal(t, want[i].Description, got[i].Description)
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.Equal(t, want[i].Date, got[i].Date)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, KeyNote)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, KeyNote, "buy milk"))
	require.NoError(t, kv.Set(ctx, KeyNote, "buy bread"))
	v, ok, err := kv.Get(ctx, KeyNote)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "buy bread", v)

	require.NoError(t, kv.Delete(ctx, KeyNote))
	require.NoError(t, kv.Delete(ctx, KeyNote))
	_, ok, err = kv.Get(ctx, KeyNote)
	require.NoError(t, err)
	assert.False(t, ok)

	b, ok := kv.(Batcher)
	require.True(t, ok, "%T must support batch writes", kv)
	require.NoError(t, kv.Set(ctx, KeyAvatar, "data:image/png;base64,AA"))
	require.NoError(t, b.WriteBatch(ctx, []Change{
		{Key: KeyTheme, Value: "dark"},
		{Key: KeyDisplayName, Value: "Sam"},
		{Key: KeyAvatar, Delete: true},
	}))
	for key, want := range map[string]string{KeyTheme: "dark", KeyDisplayName: "Sam"} {
		v, ok, err := kv.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, v)
	}
	_, ok, err = kv.Get(ctx, KeyAvatar)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "monee.json")
	kv, err := OpenFile(path)
	require.NoError(t, err)
	exerciseKV(t, kv)

	require.NoError(t, kv.Set(context.Background(), KeyTheme, "dark"))
	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileKVMalformedStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monee.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	kv, err := OpenFile(path)
	require.NoError(t, err)
	_, ok, err := kv.Get(context.Background(), KeyExpenses)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(context.Background(), KeyNote, "fresh"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "fresh")
}

func TestKVRecordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	p := NewKVRecords(kv)

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, p.Save(ctx, sampleRecords()))
	got, err = p.Load(ctx)
	require.NoError(t, err)
	assertSameRecords(t, sampleRecords(), got)

	require.NoError(t, p.Save(ctx, nil))
	raw, _, _ := kv.Get(ctx, KeyExpenses)
	assert.Equal(t, "[]", raw)
}

func TestKVRecordsMalformed(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	require.NoError(t, kv.Set(ctx, KeyExpenses, `[{"id": 1, "amount": "x"`))

	_, err := NewKVRecords(kv).Load(ctx)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestKVRecordsReadsLegacyPayload(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	legacy := `[{"id":"1736071200000","amount":12.5,"description":"pizza","category":"Food & Dining","date":"2025-01-05","createdAt":"2025-01-05T10:00:00.000Z"}]`
	require.NoError(t, kv.Set(ctx, KeyExpenses, legacy))

	got, err := NewKVRecords(kv).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1736071200000", got[0].ID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got[0].Amount))
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "monee.db")
	db, err := NewSQLite(path)
	require.NoError(t, err)

	exerciseKV(t, db)

	got, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, db.Save(ctx, sampleRecords()))
	got, err = db.Load(ctx)
	require.NoError(t, err)
	assertSameRecords(t, sampleRecords(), got)

	// Save replaces, it does not append.
	require.NoError(t, db.Save(ctx, sampleRecords()[1:]))
	got, err = db.Load(ctx)
	require.NoError(t, err)
	assertSameRecords(t, sampleRecords()[1:], got)
	require.NoError(t, db.Close())

	// Reopening runs migrations again without error and keeps the data.
	db, err = NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	got, err = db.Load(ctx)
	require.NoError(t, err)
	assertSameRecords(t, sampleRecords()[1:], got)
}

func TestSQLiteBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "monee.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set(ctx, KeyTheme, "light"))
	// Renaming the table makes every statement of the batch fail after BEGIN.
	_, err = db.db.ExecContext(ctx, `ALTER TABLE kv RENAME TO kv_old`)
	require.NoError(t, err)
	require.Error(t, db.WriteBatch(ctx, []Change{{Key: KeyTheme, Value: "dark"}}))
	_, err = db.db.ExecContext(ctx, `ALTER TABLE kv_old RENAME TO kv`)
	require.NoError(t, err)

	v, _, err := db.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "light", v)
}

func TestSQLiteSkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "monee.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save(ctx, sampleRecords()))
	_, err = db.db.ExecContext(ctx, `UPDATE expenses SET created_at = 'yesterday' WHERE id = ?`, sampleRecords()[0].ID)
	require.NoError(t, err)

	got, err := db.Load(ctx)
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), sampleRecords()[0].ID)
	assertSameRecords(t, sampleRecords()[1:], got)
}

func TestSQLiteSaveLargeList(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "monee.db"))
	require.NoError(t, err)
	defer db.Close()

	records := make([]core.Expense, 250)
	for i := range records {
		records[i] = core.Expense{
			ID:          decimal.NewFromInt(int64(i)).String(),
			Amount:      decimal.NewFromInt(int64(i)),
			Description: "item",
			Category:    core.Other,
			Date:        "2025-01-01",
			CreatedAt:   time.Unix(int64(i), 0).UTC(),
		}
	}
	require.NoError(t, db.Save(ctx, records))
	got, err := db.Load(ctx)
	require.NoError(t, err)
	assertSameRecords(t, records, got)
}
