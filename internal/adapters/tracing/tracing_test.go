package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_ExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{Enabled: true, Writer: &buf, Version: "test"})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "pipeline.cycle")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "pipeline.cycle")
	assert.Contains(t, buf.String(), serviceName)
}
