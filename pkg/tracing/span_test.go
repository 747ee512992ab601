package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "index_build", "")
	require.Len(t, root.TraceID, 16)

	passCtx, pass := StartChildSpan(ctx, "pass1")
	_, batch := StartChildSpan(passCtx, "batch")
	batch.SetAttr("docs", 10)
	batch.End()
	pass.End()
	root.End()
	first := root.Duration
	root.End()

	assert.Equal(t, first, root.Duration)
	assert.Same(t, pass, SpanFromContext(passCtx))
	require.Len(t, root.Children(), 1)
	assert.Equal(t, root.TraceID, batch.TraceID)
	v, ok := batch.Attr("docs")
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "span=batch")
	assert.Contains(t, lines[2], "depth=2")
	assert.Contains(t, lines[2], "docs=10")
}

func TestChildWithoutParentStartsTrace(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.NotEmpty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
}
