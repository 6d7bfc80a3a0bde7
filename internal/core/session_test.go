package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistryLifecycle(t *testing.T) {
	registry := NewSessionRegistry()

	assert.Nil(t, registry.Get("missing"))

	live := registry.Add("s1", nil)
	require.NotNil(t, live)
	assert.Same(t, live, registry.Get("s1"))

	removed := registry.Remove("s1")
	assert.Same(t, live, removed)
	assert.Nil(t, registry.Get("s1"))
	assert.Nil(t, registry.Remove("s1"))
}

func TestAttemptLogAppendOnly(t *testing.T) {
	registry := NewSessionRegistry()
	live := registry.Add("s1", nil)

	for i, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		live.mu.Lock()
		live.appendAttempt(Attempt{Timestamp: time.Now(), GeneratedQuery: q})
		live.mu.Unlock()
		assert.Len(t, live.Attempts(), i+1)
	}

	attempts := live.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, "SELECT 1", attempts[0].GeneratedQuery)
	assert.Equal(t, "SELECT 2", attempts[1].GeneratedQuery)
	assert.Equal(t, "SELECT 3", attempts[2].GeneratedQuery)

	// Attempts returns a copy; mutating it must not reach the log.
	attempts[0].GeneratedQuery = "tampered"
	assert.Equal(t, "SELECT 1", live.Attempts()[0].GeneratedQuery)
}
