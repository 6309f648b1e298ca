package lease

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PostgresLocker аренда в виде строки таблицы scheduler_leases
type PostgresLocker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresLocker(db *gorm.DB) *PostgresLocker {
	return &PostgresLocker{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Acquire вставляет строку аренды либо перехватывает истекшую.
// Аренда получена, если затронута ровно одна строка.
func (l *PostgresLocker) Acquire(ctx context.Context, name, owner string, lockAtMostFor time.Duration) (bool, error) {
	now := l.now()
	result := l.db.WithContext(ctx).Exec(
		`INSERT INTO scheduler_leases (name, owner, locked_at, locked_until) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, locked_at = EXCLUDED.locked_at, locked_until = EXCLUDED.locked_until
		WHERE scheduler_leases.locked_until <= ?`,
		name, owner, now, now.Add(lockAtMostFor), now,
	)
	if result.Error != nil {
		return false, fmt.Errorf("ошибка захвата аренды %s: %w", name, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Release сокращает аренду до keepUntil (или до текущего момента, если он уже прошел)
func (l *PostgresLocker) Release(ctx context.Context, name, owner string, keepUntil time.Time) error {
	until := keepUntil.UTC()
	if now := l.now(); until.Before(now) {
		until = now
	}

	result := l.db.WithContext(ctx).Exec(
		`UPDATE scheduler_leases SET locked_until = ? WHERE name = ? AND owner = ?`,
		until, name, owner,
	)
	if result.Error != nil {
		return fmt.Errorf("ошибка освобождения аренды %s: %w", name, result.Error)
	}
	return nil
}
