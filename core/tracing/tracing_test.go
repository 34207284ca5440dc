package tracing_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"termsync/core/tracing"
)

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := tracing.Setup(tracing.Config{}, "termsync")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansWrittenToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := tracing.Setup(tracing.Config{Enabled: true, Output: path}, "termsync-test")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"unit"`)
}
