// Package prefs keeps the secondary application state: the dashboard note,
// the assistant API key, and the profile and appearance settings.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"monee/internal/core"
	applog "monee/internal/log"
	"monee/internal/storage"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"

	maxAvatarBytes     = 2 << 20
	maxDisplayNameLen  = 100
	avatarPrefix       = "data:image/"
	maskedVisibleChars = 4
)

var (
	ErrInvalidTheme       = errors.New("theme must be light, dark or system")
	ErrInvalidAvatar      = errors.New("avatar must be an image data URI")
	ErrAvatarTooLarge     = errors.New("avatar exceeds 2 MiB")
	ErrDisplayNameTooLong = errors.New("display name too long (max 100 characters)")
)

// Update is a partial settings change. Nil fields are left untouched; an
// empty string removes the stored value.
type Update struct {
	Note        *string `json:"note,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	Theme       *string `json:"theme,omitempty"`
	APIKey      *string `json:"apiKey,omitempty"`
}

type Preferences struct {
	kv     storage.KV
	logger *applog.Logger
}

func New(kv storage.KV, logger *applog.Logger) *Preferences {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Preferences{kv: kv, logger: logger.WithComponent(applog.ComponentPrefs)}
}

// Settings returns the stored preferences with the API key masked.
func (p *Preferences) Settings(ctx context.Context) (core.Settings, error) {
	var s core.Settings
	var err error
	if s.Note, err = p.get(ctx, storage.KeyNote); err != nil {
		return core.Settings{}, err
	}
	if s.DisplayName, err = p.get(ctx, storage.KeyDisplayName); err != nil {
		return core.Settings{}, err
	}
	if s.Avatar, err = p.get(ctx, storage.KeyAvatar); err != nil {
		return core.Settings{}, err
	}
	if s.Theme, err = p.Theme(ctx); err != nil {
		return core.Settings{}, err
	}
	key, err := p.APIKey(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	s.HasAPIKey = key != ""
	s.APIKey = MaskKey(key)
	return s, nil
}

// APIKey returns the raw assistant API key, or "" when none is stored.
func (p *Preferences) APIKey(ctx context.Context) (string, error) {
	return p.get(ctx, storage.KeyAPIKey)
}

func (p *Preferences) Note(ctx context.Context) (string, error) {
	return p.get(ctx, storage.KeyNote)
}

func (p *Preferences) SetNote(ctx context.Context, note string) error {
	return p.set(ctx, storage.KeyNote, note)
}

// Theme returns the stored theme, defaulting to system.
func (p *Preferences) Theme(ctx context.Context) (string, error) {
	theme, err := p.get(ctx, storage.KeyTheme)
	if err != nil {
		return "", err
	}
	if validTheme(theme) != nil {
		return ThemeSystem, nil
	}
	return theme, nil
}

// Apply validates every field of u before writing any of them. On a KV that
// implements storage.Batcher the writes land together or not at all;
// otherwise a failed write leaves the earlier fields of u applied.
func (p *Preferences) Apply(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	fields := []struct {
		key   string
		value *string
	}{
		{storage.KeyNote, u.Note},
		{storage.KeyDisplayName, trimmed(u.DisplayName)},
		{storage.KeyAvatar, u.Avatar},
		{storage.KeyTheme, u.Theme},
		{storage.KeyAPIKey, trimmed(u.APIKey)},
	}
	var changes []storage.Change
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		changes = append(changes, storage.Change{Key: f.key, Value: *f.value, Delete: *f.value == ""})
	}
	if len(changes) == 0 {
		return nil
	}

	if b, ok := p.kv.(storage.Batcher); ok {
		if err := b.WriteBatch(ctx, changes); err != nil {
			return fmt.Errorf("write preferences: %w", err)
		}
	} else {
		for _, c := range changes {
			if err := p.set(ctx, c.Key, c.Value); err != nil {
				return err
			}
		}
	}
	p.logger.InfoContext(ctx, "Preferences updated",
		applog.FieldOperation, applog.OpSave,
		"fields", len(changes))
	return nil
}

// ClearData removes the stored API key. Records are cleared by the store.
func (p *Preferences) ClearData(ctx context.Context) error {
	if err := p.kv.Delete(ctx, storage.KeyAPIKey); err != nil {
		return fmt.Errorf("delete %s: %w", storage.KeyAPIKey, err)
	}
	p.logger.InfoContext(ctx, "API key removed", applog.FieldOperation, applog.OpClear)
	return nil
}

func (u Update) Validate() error {
	if u.Theme != nil && *u.Theme != "" {
		if err := validTheme(*u.Theme); err != nil {
			return err
		}
	}
	if u.DisplayName != nil && len([]rune(strings.TrimSpace(*u.DisplayName))) > maxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	if u.Avatar != nil && *u.Avatar != "" {
		if !strings.HasPrefix(*u.Avatar, avatarPrefix) {
			return ErrInvalidAvatar
		}
		if len(*u.Avatar) > maxAvatarBytes {
			return ErrAvatarTooLarge
		}
	}
	return nil
}

// MaskKey hides all but the last few characters of an API key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= maskedVisibleChars*2 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-maskedVisibleChars) + key[len(key)-maskedVisibleChars:]
}

func validTheme(theme string) error {
	switch theme {
	case ThemeLight, ThemeDark, ThemeSystem:
		return nil
	default:
		return ErrInvalidTheme
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (p *Preferences) get(ctx context.Context, key string) (string, error) {
	v, _, err := p.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// set stores value, removing the key when value is empty.
func (p *Preferences) set(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		err = p.kv.Delete(ctx, key)
	} else {
		err = p.kv.Set(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
