package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"monee/internal/core"
)

var expenseColumns = []string{"id", "amount", "description", "category", "date", "created_at"}

// SQLite stores records in an expenses table and other values in a kv table.
// It implements both KV and the store's Persister.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the store serialises mutations anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := sq.Select("value").
		From("kv").
		Where(sq.Eq{"key": key}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := sq.Insert("kv").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := sq.Delete("kv").
		Where(sq.Eq{"key": key}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// WriteBatch applies changes in one transaction.
func (s *SQLite) WriteBatch(ctx context.Context, changes []Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		if c.Delete {
			_, err = sq.Delete("kv").Where(sq.Eq{"key": c.Key}).RunWith(tx).ExecContext(ctx)
		} else {
			_, err = sq.Insert("kv").
				Columns("key", "value").
				Values(c.Key, c.Value).
				Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
				RunWith(tx).
				ExecContext(ctx)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", c.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load returns the records in insertion order. Rows that cannot be decoded
// are skipped, and the rest are returned with an error wrapping ErrMalformed.
func (s *SQLite) Load(ctx context.Context) ([]core.Expense, error) {
	rows, err := sq.Select(expenseColumns...).
		From("expenses").
		OrderBy("seq").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var (
		records []core.Expense
		bad     []string
	)
	for rows.Next() {
		var (
			e                 core.Expense
			amount, createdAt string
			category          string
		)
		if err := rows.Scan(&e.ID, &amount, &e.Description, &category, &e.Date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			bad = append(bad, e.ID)
			continue
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			bad = append(bad, e.ID)
			continue
		}
		e.Category = core.Category(category)
		records = append(records, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	if len(bad) > 0 {
		return records, fmt.Errorf("%w: undecodable expenses %s", ErrMalformed, strings.Join(bad, ", "))
	}
	return records, nil
}

// Save replaces the stored list with records in a single transaction.
func (s *SQLite) Save(ctx context.Context, records []core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := sq.Delete("expenses").RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}

	for start := 0; start < len(records); start += insertBatch {
		end := min(start+insertBatch, len(records))
		insert := sq.Insert("expenses").Columns(expenseColumns...)
		for _, e := range records[start:end] {
			insert = insert.Values(
				e.ID,
				e.Amount.String(),
				e.Description,
				string(e.Category),
				e.Date,
				e.CreatedAt.UTC().Format(time.RFC3339Nano),
			)
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert expenses: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// insertBatch keeps each statement under SQLite's bound-parameter limit.
const insertBatch = 100
