// Package tracing installs the global OpenTelemetry tracer provider.
//
// Packages create spans through otel.Tracer; until Setup runs with tracing
// enabled those spans are no-ops.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls span export.
type Config struct {
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Output is a file path, or "stdout" / "stderr".
	Output string `mapstructure:"output" default:"stderr"`
}

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

// Setup installs a provider that writes spans as JSON lines to cfg.Output.
func Setup(cfg Config, service string) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeOutput()
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", service))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		defer closeOutput()
		return tp.Shutdown(ctx)
	}, nil
}

func openOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "", "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace output %s: %w", output, err)
	}
	return f, func() { _ = f.Close() }, nil
}
