// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"

// instruments records tool invocations against the global otel providers.
// Instrument creation failures leave the corresponding instrument nil.
type instruments struct {
	tracer      trace.Tracer
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	inst := instruments{tracer: otel.Tracer(instrumentationName)}
	if c, err := meter.Int64Counter("agentos.tool.invocations"); err == nil {
		inst.invocations = c
	}
	if h, err := meter.Float64Histogram("agentos.tool.duration", metric.WithUnit("ms")); err == nil {
		inst.duration = h
	}
	return inst
}

func (i instruments) record(ctx context.Context, server, tool string, isError bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.Bool("error", isError),
	)
	if i.invocations != nil {
		i.invocations.Add(ctx, 1, attrs)
	}
	if i.duration != nil {
		i.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}
