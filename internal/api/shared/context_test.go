package shared

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx), "expected no trace ID before SetTraceID")

	ctxWithTrace := SetTraceID(ctx)

	traceID := GetTraceID(ctxWithTrace)
	assert.NotEmpty(t, traceID)
	assert.Len(t, traceID, 32, "expected 16 random bytes hex encoded")

	// The original context stays untouched.
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetTraceIDWithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestGenerateTraceID(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool, iterations)

	for i := 0; i < iterations; i++ {
		id := generateTraceID()
		require.Len(t, id, 32)

		_, err := hex.DecodeString(id)
		require.NoError(t, err, "trace ID must be valid hex")

		assert.False(t, seen[id], "trace IDs must not repeat")
		seen[id] = true
	}
}

func TestGenerateFallbackTraceID(t *testing.T) {
	const iterations = 50
	seen := make(map[string]bool, iterations)

	for i := 0; i < iterations; i++ {
		id := generateFallbackTraceID()
		require.Len(t, id, 32)

		_, err := hex.DecodeString(id)
		require.NoError(t, err, "fallback ID must be valid hex")

		// The fallback derives from timestamps, so give them room to move.
		time.Sleep(time.Millisecond)

		assert.False(t, seen[id], "fallback IDs must not repeat")
		seen[id] = true
	}
}
