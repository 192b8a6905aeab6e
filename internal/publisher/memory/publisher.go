// Package memory keeps published notifications in process for tests and
// single-node runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// PublishedMessage is one accepted publish. Data is the JSON the network
// backends would have sent.
type PublishedMessage struct {
	Topic   string
	Payload any
	Data    []byte
}

// Publisher records notifications per topic. Payloads are encoded like the
// pubsub and redis backends encode them, so a payload that cannot be sent
// fails here too.
type Publisher struct {
	mu   sync.Mutex
	log  []PublishedMessage
	err  error
	seqs map[string]int
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{seqs: make(map[string]int)}
}

// FailWith makes later publishes return err; nil restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish records payload under topic. The id is "<topic>-<n>", n counting
// per topic from 1.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.seqs[topic]++
	p.log = append(p.log, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	return fmt.Sprintf("%s-%d", topic, p.seqs[topic]), nil
}

// Messages returns every recorded publish in order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedMessage(nil), p.log...)
}

// Topic returns the payloads published to topic.
func (p *Publisher) Topic(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, m := range p.log {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Close implements io.Closer.
func (p *Publisher) Close() error { return nil }
