package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenantID(ctx, "acme")
	ctx = WithTraceID(ctx, "trace-9")

	v, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", v)

	v, ok = TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	v, ok = TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-9", v)
}

func TestContextKeys_EmptyValue(t *testing.T) {
	ctx := WithTenantID(context.Background(), "")
	_, ok := TenantID(ctx)
	assert.False(t, ok)
}
