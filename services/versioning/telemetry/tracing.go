// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig controls trace export.
type TracingConfig struct {
	// ServiceName identifies this service in exported spans.
	ServiceName string

	// ServiceVersion is the version string attached to the trace resource.
	ServiceVersion string

	// Exporter selects the span exporter: "stdout" or "none".
	Exporter string
}

// InitTracing installs the global TracerProvider.
//
// Description:
//
//	After InitTracing returns successfully, otel.Tracer() spans created
//	anywhere in the process are sampled and exported. With Exporter "none"
//	no provider is installed and spans stay no-ops.
//
// Inputs:
//
//	ctx - Unused by the stdout exporter; reserved for exporters that dial out.
//	cfg - Tracing configuration.
//
// Outputs:
//
//	shutdown - Flushes and stops the provider. Must be called on exit.
//	error - Non-nil for an unknown exporter or exporter construction failure.
//
// Thread Safety: Call once at application startup.
func InitTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	if cfg.Exporter == "none" || cfg.Exporter == "" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
