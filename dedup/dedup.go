// Package dedup provides the duplicate-detection collaborator consulted at
// admission. Failures anywhere in a store are never fatal to the scheduler:
// the caller logs them and treats the request as not seen.
package dedup

import (
	"context"
	"sync"
)

// Store answers whether a request fingerprint has been seen before.
// Implementations with real setup work do it in Init; the scheduler calls
// Init in the background and logs, never propagates, its error.
type Store interface {
	Init(ctx context.Context) error
	// Seen records the fingerprint and reports whether it was already
	// present.
	Seen(ctx context.Context, fingerprint string) (bool, error)
}

// InMemory is a process-local Store backed by a plain set.
type InMemory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{seen: map[string]struct{}{}}
}

func (s *InMemory) Init(_ context.Context) error {
	return nil
}

func (s *InMemory) Seen(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[fingerprint]; ok {
		return true, nil
	}
	s.seen[fingerprint] = struct{}{}

	return false, nil
}
