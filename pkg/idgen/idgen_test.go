package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCode_Unique(t *testing.T) {
	g, err := New(1, "test-salt")
	require.NoError(t, err)

	const n = 5000
	codes := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		code := g.NextCode()
		_, dup := codes[code]
		require.False(t, dup, "duplicate code %s", code)
		codes[code] = struct{}{}
	}
}

func TestNextCode_Alphabet(t *testing.T) {
	g, err := New(1, "test-salt")
	require.NoError(t, err)

	code := g.NextCode()
	assert.GreaterOrEqual(t, len(code), 10)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
	}
}

func TestNextID_Concurrent(t *testing.T) {
	g, err := New(2, "test-salt")
	require.NoError(t, err)

	const (
		goroutines = 10
		perRoutine = 1000
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{}, goroutines*perRoutine)
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perRoutine; j++ {
				id := g.NextID()
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, goroutines*perRoutine)
}

func TestNew_InvalidNode(t *testing.T) {
	_, err := New(4096, "salt")
	assert.Error(t, err)
}
