package saga

import (
	"context"
	"fmt"
)

// Command следующее событие, которое обработчик шага просит опубликовать.
// replyTo проставляет движок: это всегда топик саги.
type Command struct {
	Topic     string
	EventType EventType
	Payload   string
}

// StepHandler строит следующую команду по входящему событию. Обработчик не пишет
// в хранилище и не публикует сам, поэтому его можно безопасно вызывать повторно.
type StepHandler func(ctx context.Context, s *Saga, event Event) (*Command, error)

// Transition переход графа: событие (From, Outcome) переводит сагу в To и вызывает Handler.
// Terminal переход завершает сагу и ничего не публикует.
type Transition struct {
	From     EventType
	Outcome  EventOutcome
	To       EventType
	Handler  StepHandler
	Terminal bool
}

// StepGraph неизменяемый граф шагов одного типа саги
type StepGraph struct {
	sagaName string
	topic    string
	steps    map[EventType][]Transition
	order    []EventType
}

func (g *StepGraph) SagaName() string {
	return g.sagaName
}

// Topic топик, на который приходят ответы для этой саги
func (g *StepGraph) Topic() string {
	return g.topic
}

// EventTypes типы событий, на которые подписан граф, в порядке регистрации
func (g *StepGraph) EventTypes() []EventType {
	out := make([]EventType, len(g.order))
	copy(out, g.order)
	return out
}

// Lookup ищет переход для события. Второй результат false, если тип события
// графу не известен вовсе, третий false, если тип известен, но исход не описан.
func (g *StepGraph) Lookup(eventType EventType, outcome EventOutcome) (Transition, bool, bool) {
	transitions, ok := g.steps[eventType]
	if !ok {
		return Transition{}, false, false
	}
	for _, tr := range transitions {
		if tr.Outcome == outcome {
			return tr, true, true
		}
	}
	return Transition{}, true, false
}

// GraphBuilder fluent-построитель графа: Begin -> Step... -> End
type GraphBuilder struct {
	graph *StepGraph
	err   error
	begun bool
}

// NewStepGraph начинает описание графа саги sagaName, отвечающей на топик topic
func NewStepGraph(sagaName, topic string) *GraphBuilder {
	return &GraphBuilder{
		graph: &StepGraph{
			sagaName: sagaName,
			topic:    topic,
			steps:    make(map[EventType][]Transition),
		},
	}
}

// Begin регистрирует входной обработчик, который вызывается при старте саги
func (b *GraphBuilder) Begin(to EventType, handler StepHandler) *GraphBuilder {
	b.begun = true
	return b.add(Transition{From: EventInitiated, Outcome: OutcomeInitiateSuccess, To: to, Handler: handler})
}

// Step регистрирует переход (from, outcome) -> to
func (b *GraphBuilder) Step(from EventType, outcome EventOutcome, to EventType, handler StepHandler) *GraphBuilder {
	return b.add(Transition{From: from, Outcome: outcome, To: to, Handler: handler})
}

// End помечает пару (eventType, outcome) как завершающую
func (b *GraphBuilder) End(eventType EventType, outcome EventOutcome) *GraphBuilder {
	return b.add(Transition{From: eventType, Outcome: outcome, To: eventType, Terminal: true})
}

func (b *GraphBuilder) add(tr Transition) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if !tr.Terminal && tr.Handler == nil {
		b.err = fmt.Errorf("сага %s: у перехода %s/%s нет обработчика", b.graph.sagaName, tr.From, tr.Outcome)
		return b
	}

	existing, ok := b.graph.steps[tr.From]
	for _, e := range existing {
		if e.Outcome == tr.Outcome {
			b.err = fmt.Errorf("сага %s: переход %s/%s уже зарегистрирован", b.graph.sagaName, tr.From, tr.Outcome)
			return b
		}
	}
	if !ok {
		b.graph.order = append(b.graph.order, tr.From)
	}
	b.graph.steps[tr.From] = append(existing, tr)
	return b
}

// Build проверяет и возвращает граф
func (b *GraphBuilder) Build() (*StepGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.begun {
		return nil, fmt.Errorf("сага %s: не задан начальный шаг (Begin)", b.graph.sagaName)
	}

	hasEnd := false
	for _, transitions := range b.graph.steps {
		for _, tr := range transitions {
			if tr.Terminal {
				hasEnd = true
			}
		}
	}
	if !hasEnd {
		return nil, fmt.Errorf("сага %s: не задан завершающий шаг (End)", b.graph.sagaName)
	}

	return b.graph, nil
}

// MustBuild как Build, но паникует при ошибке. Для графов, описанных в коде.
func (b *GraphBuilder) MustBuild() *StepGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
