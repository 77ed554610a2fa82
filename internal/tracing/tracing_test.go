package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		assert.True(t, strings.HasPrefix(id, "req_"))
		assert.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestRequestInfo(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)

	ctx := WithRequestID(context.Background(), "req_1")
	ctx = WithStartTime(ctx, start)

	info := GetRequestInfo(ctx)
	assert.Equal(t, "req_1", info.RequestID)
	assert.Equal(t, start, info.StartTime)
	assert.Empty(t, info.TraceID)

	assert.GreaterOrEqual(t, Duration(ctx), 50*time.Millisecond)
}

func TestRequestInfo_Empty(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.True(t, GetStartTime(ctx).IsZero())
	assert.Zero(t, Duration(ctx))
}
