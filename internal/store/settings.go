package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveSetting upserts a key-value setting, last write wins.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// Setting returns the value for key. The second return is false when the
// key has never been saved.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, true, nil
}

// AdminPassword returns the configured admin PIN, falling back to the
// default when none has been saved.
func (s *Store) AdminPassword(ctx context.Context) (string, error) {
	value, ok, err := s.Setting(ctx, SettingAdminPassword)
	if err != nil {
		return "", err
	}
	if !ok || value == "" {
		return DefaultAdminPassword, nil
	}
	return value, nil
}
