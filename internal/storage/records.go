package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"monee/internal/core"
)

// KVRecords persists the record list as a JSON array under a single key,
// the layout browser local storage used.
type KVRecords struct {
	kv  KV
	key string
}

func NewKVRecords(kv KV) *KVRecords {
	return &KVRecords{kv: kv, key: KeyExpenses}
}

// Load returns nil and no error when nothing was saved yet.
func (r *KVRecords) Load(ctx context.Context) ([]core.Expense, error) {
	raw, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var records []core.Expense
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, r.key, err)
	}
	return records, nil
}

func (r *KVRecords) Save(ctx context.Context, records []core.Expense) error {
	if records == nil {
		records = []core.Expense{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", r.key, err)
	}
	return nil
}
