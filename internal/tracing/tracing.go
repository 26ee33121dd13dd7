// Package tracing configures OpenTelemetry for appliancectl.
//
// Until Setup is called with enable=true the global no-op provider is in
// place, so spans started by the client packages cost nothing.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationPrefix = "github.com/muurk/appliancectl/"

// Setup installs a global tracer provider that writes spans to w (stderr when
// nil). It returns a shutdown function which should be deferred.
//
// Spans are exported synchronously: a CLI run is short and would otherwise
// exit before a batch is flushed.
func Setup(enable bool, w io.Writer) (func(context.Context) error, error) {
	if !enable {
		return func(context.Context) error { return nil }, nil
	}
	if w == nil {
		w = os.Stderr
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the tracer for an internal package (e.g., "restapi").
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + pkg)
}

// Finish records err on span, if any, and ends it.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
