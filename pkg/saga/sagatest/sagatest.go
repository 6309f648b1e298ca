// Package sagatest содержит in-memory реализации хранилища, транзакций и шины
// для тестов оркестратора и сервисов поверх него.
package sagatest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/saga"
)

// Transactor просто вызывает fn: атомарность в памяти не нужна
type Transactor struct{}

func (Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MemoryStore хранилище саг в памяти
type MemoryStore struct {
	mu     sync.Mutex
	sagas  map[string]saga.Saga
	states map[string][]saga.SagaEventState

	// FailProgressUpdates столько ближайших вызовов UpdateProgress вернут ошибку
	FailProgressUpdates int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sagas:  make(map[string]saga.Saga),
		states: make(map[string][]saga.SagaEventState),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *saga.Saga, first *saga.SagaEventState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sagas[s.SagaID]; ok {
		return fmt.Errorf("сага %s уже существует", s.SagaID)
	}
	m.sagas[s.SagaID] = *s
	m.states[s.SagaID] = []saga.SagaEventState{*first}
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, sagaID string) (*saga.Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sagas[sagaID]
	if !ok {
		return nil, fmt.Errorf("сага %s: %w", sagaID, apperrors.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) LockByID(ctx context.Context, sagaID string) (*saga.Saga, error) {
	return m.FindByID(ctx, sagaID)
}

func (m *MemoryStore) LastStepNumber(ctx context.Context, sagaID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := 0
	for _, st := range m.states[sagaID] {
		if st.StepNumber > last {
			last = st.StepNumber
		}
	}
	return last, nil
}

func (m *MemoryStore) EventStateExists(ctx context.Context, sagaID string, outcome saga.EventOutcome, eventType saga.EventType, step int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.states[sagaID] {
		if st.EventOutcome == outcome && st.EventType == eventType && st.StepNumber == step {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) AppendEventState(ctx context.Context, state *saga.SagaEventState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.states[state.SagaID] {
		if st.StepNumber == state.StepNumber {
			return fmt.Errorf("шаг %d саги %s уже записан", state.StepNumber, state.SagaID)
		}
	}
	m.states[state.SagaID] = append(m.states[state.SagaID], *state)
	return nil
}

func (m *MemoryStore) UpdateProgress(ctx context.Context, s *saga.Saga) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailProgressUpdates > 0 {
		m.FailProgressUpdates--
		return errors.New("could not serialize access due to concurrent update")
	}

	stored, ok := m.sagas[s.SagaID]
	if !ok {
		return fmt.Errorf("сага %s: %w", s.SagaID, apperrors.ErrNotFound)
	}
	stored.Status = s.Status
	stored.SagaState = s.SagaState
	stored.UpdateUser = s.UpdateUser
	stored.UpdateDate = s.UpdateDate
	m.sagas[s.SagaID] = stored
	return nil
}

func (m *MemoryStore) CountInFlight(ctx context.Context, sagaName, correlationKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sagas {
		if s.SagaName == sagaName && s.CorrelationKey == correlationKey && !s.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindStale(ctx context.Context, sagaName string, updatedBefore time.Time, limit int) ([]saga.Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []saga.Saga
	for _, s := range m.sagas {
		if s.SagaName == sagaName && !s.Status.Terminal() && s.UpdateDate.Before(updatedBefore) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdateDate.Before(out[j].UpdateDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LastEventState(ctx context.Context, sagaID string) (*saga.SagaEventState, error) {
	history := m.History(sagaID)
	if len(history) == 0 {
		return nil, fmt.Errorf("история саги %s: %w", sagaID, apperrors.ErrNotFound)
	}
	last := history[len(history)-1]
	return &last, nil
}

// History история саги, упорядоченная по номеру шага
func (m *MemoryStore) History(sagaID string) []saga.SagaEventState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]saga.SagaEventState(nil), m.states[sagaID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

// Put кладет сагу в хранилище как есть (подготовка данных в тестах)
func (m *MemoryStore) Put(s saga.Saga, history ...saga.SagaEventState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sagas[s.SagaID] = s
	m.states[s.SagaID] = append([]saga.SagaEventState(nil), history...)
}

// Len количество саг
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sagas)
}

// Published опубликованное событие
type Published struct {
	Topic string
	Event saga.Event
}

// RecordingPublisher запоминает все публикации
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, event saga.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Topic: topic, Event: event})
	return nil
}

// Events копия всех публикаций
func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// Last последняя публикация
func (p *RecordingPublisher) Last() (Published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Published{}, false
	}
	return p.events[len(p.events)-1], true
}
