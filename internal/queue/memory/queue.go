// Package memory provides an in-process set broker for local development
// and tests.
package memory

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("broker closed")

// Broker keeps one set per key and pops random members.
type Broker struct {
	mu     sync.Mutex
	sets   map[string]map[string]struct{}
	closed bool
}

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{sets: make(map[string]map[string]struct{})}
}

// Pop removes and returns a random member of key. ok is false when the set
// is empty.
func (b *Broker) Pop(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false, ErrClosed
	}
	set := b.sets[key]
	if len(set) == 0 {
		return "", false, nil
	}
	n := rand.IntN(len(set))
	for id := range set {
		if n == 0 {
			delete(set, id)
			return id, true, nil
		}
		n--
	}
	return "", false, nil
}

// Add inserts ids into key; existing members are kept once.
func (b *Broker) Add(ctx context.Context, key string, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if len(ids) == 0 {
		return nil
	}
	set := b.sets[key]
	if set == nil {
		set = make(map[string]struct{}, len(ids))
		b.sets[key] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

// Len reports the size of key's set.
func (b *Broker) Len(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sets[key])
}

// Close rejects later operations.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
