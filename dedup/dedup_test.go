package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySeen(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Init(context.Background()))

	seen, err := s.Seen(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(context.Background(), "fp-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestInMemoryConcurrent(t *testing.T) {
	s := NewInMemory()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 8; i++ {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				seen, err := s.Seen(context.Background(), fmt.Sprintf("fp-%d", j))
				assert.NoError(t, err)
				if !seen {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}(j)
		}
	}
	wg.Wait()
	// each distinct fingerprint is unseen exactly once
	assert.Equal(t, 4, firsts)
}
