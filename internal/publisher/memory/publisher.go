// Package memory records published events in-process for dry runs and tests. Messages keep the
// payload value and the attributes Pub/Sub would have carried.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID         string
	Topic      string
	Payload    any
	Attributes map[string]string
}

// Publisher is an in-memory crawler.Publisher.
type Publisher struct {
	mu  sync.RWMutex
	log []PublishedMessage
	seq int
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the message and returns a sequential memory-N ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	msg := PublishedMessage{Topic: topic, Payload: payload}
	if a, ok := payload.(interface{ Attributes() map[string]string }); ok {
		msg.Attributes = a.Attributes()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg.ID = fmt.Sprintf("memory-%d", p.seq)
	p.log = append(p.log, msg)
	return msg.ID, nil
}

// Messages returns a copy of the log in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.log...)
}

// OnTopic returns the payloads published to topic, in order.
func (p *Publisher) OnTopic(topic string) []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []any
	for _, m := range p.log {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
