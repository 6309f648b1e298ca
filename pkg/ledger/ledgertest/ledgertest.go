// Package ledgertest журнал команд в памяти для тестов исполнителей
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

// MemoryRepository реализация ledger.Repository в памяти
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]ledger.CommandLedger
	touched int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]ledger.CommandLedger)}
}

func key(sagaID string, eventType saga.EventType) string {
	return sagaID + "/" + string(eventType)
}

func (r *MemoryRepository) FindBySagaAndType(ctx context.Context, sagaID string, eventType saga.EventType) (*ledger.CommandLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key(sagaID, eventType)]
	if !ok {
		return nil, fmt.Errorf("команда %s саги %s: %w", eventType, sagaID, apperrors.ErrNotFound)
	}
	return &entry, nil
}

// Create как и в Postgres, повтор пары (sagaId, eventType) дает gorm.ErrDuplicatedKey
func (r *MemoryRepository) Create(ctx context.Context, entry *ledger.CommandLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(entry.SagaID, entry.EventType)
	if _, ok := r.entries[k]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.entries[k] = *entry
	return nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, entry := range r.entries {
		if entry.ID == id {
			entry.UpdateDate = at
			r.entries[k] = entry
			r.touched++
			return nil
		}
	}
	return fmt.Errorf("запись журнала %s: %w", id, apperrors.ErrNotFound)
}

// Touched сколько раз сработала ветка повторной доставки
func (r *MemoryRepository) Touched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touched
}

func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
