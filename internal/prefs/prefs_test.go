package prefs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monee/internal/storage"
)

type brokenKV struct{}

var errBroken = errors.New("kv unavailable")

func (brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, errBroken }
func (brokenKV) Set(context.Context, string, string) error         { return errBroken }
func (brokenKV) Delete(context.Context, string) error              { return errBroken }

func ptr(s string) *string { return &s }

// rejectingBatchKV stores single writes but fails every batch.
type rejectingBatchKV struct {
	*storage.Memory
}

func (rejectingBatchKV) WriteBatch(context.Context, []storage.Change) error { return errBroken }

// flakySetKV has no batch support and fails the second Set.
type flakySetKV struct {
	mem  *storage.Memory
	sets int
}

func (f *flakySetKV) Get(ctx context.Context, key string) (string, bool, error) {
	return f.mem.Get(ctx, key)
}

func (f *flakySetKV) Set(ctx context.Context, key, value string) error {
	f.sets++
	if f.sets == 2 {
		return errBroken
	}
	return f.mem.Set(ctx, key, value)
}

func (f *flakySetKV) Delete(ctx context.Context, key string) error { return f.mem.Delete(ctx, key) }

func TestDefaults(t *testing.T) {
	p := New(storage.NewMemory(), nil)
	s, err := p.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, s.Theme)
	assert.Empty(t, s.Note)
	assert.False(t, s.HasAPIKey)
	assert.Empty(t, s.APIKey)
}

func TestApplyAndRead(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	p := New(kv, nil)

	err := p.Apply(ctx, Update{
		Note:        ptr("groceries on friday"),
		DisplayName: ptr("  Sam  "),
		Theme:       ptr(ThemeDark),
		APIKey:      ptr(" AIzaSyExampleKey1234 "),
		Avatar:      ptr("data:image/png;base64,AAAA"),
	})
	require.NoError(t, err)

	s, err := p.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "groceries on friday", s.Note)
	assert.Equal(t, "Sam", s.DisplayName)
	assert.Equal(t, ThemeDark, s.Theme)
	assert.True(t, s.HasAPIKey)
	assert.Equal(t, "****************1234", s.APIKey)
	assert.Equal(t, "data:image/png;base64,AAAA", s.Avatar)

	raw, err := p.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyExampleKey1234", raw)

	stored, ok, err := kv.Get(ctx, storage.KeyAPIKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, raw, stored)
}

func TestPartialUpdateLeavesOtherFields(t *testing.T) {
	ctx := context.Background()
	p := New(storage.NewMemory(), nil)
	require.NoError(t, p.SetNote(ctx, "keep me"))
	require.NoError(t, p.Apply(ctx, Update{Theme: ptr(ThemeLight)}))

	note, err := p.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep me", note)

	// Empty string removes the value.
	require.NoError(t, p.Apply(ctx, Update{Note: ptr("")}))
	note, err = p.Note(ctx)
	require.NoError(t, err)
	assert.Empty(t, note)
}

func TestApplyValidation(t *testing.T) {
	tests := []struct {
		name string
		u    Update
		want error
	}{
		{"bad theme", Update{Theme: ptr("neon")}, ErrInvalidTheme},
		{"avatar not a data uri", Update{Avatar: ptr("https://example.com/me.png")}, ErrInvalidAvatar},
		{"avatar too large", Update{Avatar: ptr(avatarPrefix + strings.Repeat("A", maxAvatarBytes))}, ErrAvatarTooLarge},
		{"display name too long", Update{DisplayName: ptr(strings.Repeat("x", 101))}, ErrDisplayNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemory()
			p := New(kv, nil)
			u := tt.u
			u.Note = ptr("should not be written")

			assert.ErrorIs(t, p.Apply(ctx, u), tt.want)
			_, ok, _ := kv.Get(ctx, storage.KeyNote)
			assert.False(t, ok)
		})
	}
}

func TestUnknownStoredThemeFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, storage.KeyTheme, "sepia"))
	theme, err := New(kv, nil).Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, theme)
}

func TestClearData(t *testing.T) {
	ctx := context.Background()
	p := New(storage.NewMemory(), nil)
	require.NoError(t, p.Apply(ctx, Update{APIKey: ptr("secret-key-value"), Note: ptr("n")}))
	require.NoError(t, p.ClearData(ctx))

	key, err := p.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	note, err := p.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n", note)

	// Clearing twice is fine.
	require.NoError(t, p.ClearData(ctx))
}

func TestApplyBatchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	kv := rejectingBatchKV{Memory: storage.NewMemory()}
	p := New(kv, nil)

	err := p.Apply(ctx, Update{Note: ptr("n"), Theme: ptr(ThemeDark)})
	require.ErrorIs(t, err, errBroken)

	_, ok, err := kv.Get(ctx, storage.KeyNote)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = kv.Get(ctx, storage.KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyWithoutBatchWritesInOrder(t *testing.T) {
	ctx := context.Background()
	kv := &flakySetKV{mem: storage.NewMemory()}
	p := New(kv, nil)

	err := p.Apply(ctx, Update{Note: ptr("n"), Theme: ptr(ThemeDark)})
	require.ErrorIs(t, err, errBroken)

	// The note was written before the theme write failed.
	note, err := p.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n", note)
	theme, err := p.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, theme)
}

func TestKVErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	p := New(brokenKV{}, nil)

	_, err := p.Settings(ctx)
	assert.ErrorIs(t, err, errBroken)
	assert.ErrorIs(t, p.SetNote(ctx, "x"), errBroken)
	assert.ErrorIs(t, p.ClearData(ctx), errBroken)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "*****", MaskKey("short"))
	assert.Equal(t, "*****6789", MaskKey("123456789"))
}
