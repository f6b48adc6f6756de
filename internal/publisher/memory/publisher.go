// Package memory records snapshot notifications in-memory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher keeps every notification it receives. Set Err to make Publish
// fail, which lets callers exercise their best-effort delivery paths.
type Publisher struct {
	mu  sync.Mutex
	log []Message
	seq int
	Err error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records payload under topic and returns a sequential id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.Err)
	}
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.log = append(p.log, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of everything published so far, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.log...)
}

// OnTopic returns the messages published to topic.
func (p *Publisher) OnTopic(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, m := range p.log {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
