package memory

import (
	"context"
	"sync"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
)

type subscription struct {
	id      uint64
	handler ports.EventHandler
	ctx     context.Context
}

// group delivers each event to one of its subscriptions in turn
type group struct {
	subs []*subscription
	next int
}

// InMemoryEventBus implements EventBus using in-memory handlers
type InMemoryEventBus struct {
	topics map[string]map[string]*group
	seq    uint64
	mu     sync.Mutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		topics: make(map[string]map[string]*group),
	}
}

// Publish delivers an event to one subscriber of every group on the topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.Lock()
	var targets []*subscription
	for _, g := range e.topics[topic] {
		if len(g.subs) == 0 {
			continue
		}
		targets = append(targets, g.subs[g.next%len(g.subs)])
		g.next++
	}
	e.mu.Unlock()

	// Handlers run asynchronously under the subscriber's context
	for _, sub := range targets {
		go func(s *subscription) {
			_ = s.handler(s.ctx, event)
		}(sub)
	}

	return nil
}

// Subscribe registers a handler in a group; it is removed when ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic, groupName string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups, ok := e.topics[topic]
	if !ok {
		groups = make(map[string]*group)
		e.topics[topic] = groups
	}
	g, ok := groups[groupName]
	if !ok {
		g = &group{}
		groups[groupName] = g
	}

	e.seq++
	sub := &subscription{id: e.seq, handler: handler, ctx: ctx}
	g.subs = append(g.subs, sub)

	go func() {
		<-ctx.Done()
		e.remove(topic, groupName, sub.id)
	}()

	return nil
}

// Unsubscribe removes a whole group from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic, groupName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if groups, ok := e.topics[topic]; ok {
		delete(groups, groupName)
	}
	return nil
}

// Close closes the event bus and drops all subscribers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.topics = make(map[string]map[string]*group)
	return nil
}

// remove drops a single subscription
func (e *InMemoryEventBus) remove(topic, groupName string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.topics[topic][groupName]
	if !ok {
		return
	}
	for i, s := range g.subs {
		if s.id == id {
			g.subs = append(g.subs[:i], g.subs[i+1:]...)
			break
		}
	}
}
