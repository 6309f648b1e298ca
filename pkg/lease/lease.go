// Package lease распределенная аренда для заданий по расписанию: из нескольких
// экземпляров сервиса задание выполняет только тот, кто захватил аренду.
package lease

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Locker захват и освобождение именованной аренды
type Locker interface {
	// Acquire захватывает аренду на lockAtMostFor. false, если ее держит другой владелец.
	Acquire(ctx context.Context, name, owner string, lockAtMostFor time.Duration) (bool, error)
	// Release освобождает аренду, но не раньше keepUntil
	Release(ctx context.Context, name, owner string, keepUntil time.Time) error
}

// Lease запись об аренде
type Lease struct {
	Name        string    `gorm:"primaryKey;type:varchar(64)"`
	Owner       string    `gorm:"type:varchar(255);not null"`
	LockedAt    time.Time `gorm:"not null"`
	LockedUntil time.Time `gorm:"not null"`
}

func (Lease) TableName() string {
	return "scheduler_leases"
}

// NewOwner идентификатор экземпляра: имя хоста и случайный суффикс
func NewOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}

// Guard выполняет функцию под арендой
type Guard struct {
	locker Locker
	owner  string
	now    func() time.Time
}

func NewGuard(locker Locker, owner string) *Guard {
	return &Guard{
		locker: locker,
		owner:  owner,
		now:    time.Now,
	}
}

func (g *Guard) Owner() string {
	return g.owner
}

// Run выполняет fn, если удалось захватить аренду name. После выполнения аренда
// удерживается минимум lockAtLeastFor с момента захвата, чтобы другие экземпляры
// не повторили то же задание при небольшом расхождении часов.
func (g *Guard) Run(ctx context.Context, name string, lockAtLeastFor, lockAtMostFor time.Duration, fn func(ctx context.Context) error) (bool, error) {
	acquiredAt := g.now()

	ok, err := g.locker.Acquire(ctx, name, g.owner, lockAtMostFor)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	runErr := fn(ctx)

	if err := g.locker.Release(context.WithoutCancel(ctx), name, g.owner, acquiredAt.Add(lockAtLeastFor)); err != nil {
		if runErr != nil {
			return true, fmt.Errorf("%w (аренда не освобождена: %v)", runErr, err)
		}
		return true, err
	}
	return true, runErr
}
