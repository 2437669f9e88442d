// Package tracing wires the dispatch pipeline into OpenTelemetry spans.
// Earlier revisions of this gateway persisted a trace row per request in the
// primary database; that approach does not survive multi-instance deployment
// (every instance writes to the same hot table) so requests are now traced
// with real spans exported over OTLP/gRPC, and the gin context only carries
// the w3c trace id for log correlation.
package tracing

import (
	"context"
	"sync"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/logger"
)

const tracerName = "github.com/gateway/multiapi/dispatch"

var (
	tracer     trace.Tracer = otel.Tracer(tracerName)
	initOnce   sync.Once
	shutdownFn func(context.Context) error
)

// Init configures the global OTel tracer provider when config.TracingEnabled
// is set. It is a no-op (and leaves otel's default no-op provider in place)
// otherwise. Safe to call more than once; only the first call takes effect.
func Init(ctx context.Context) error {
	var initErr error
	initOnce.Do(func() {
		if !config.TracingEnabled {
			return
		}

		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(config.OTLPEndpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			initErr = err
			return
		}

		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(config.SystemName),
		))
		if err != nil {
			initErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		tracer = tp.Tracer(tracerName)
		shutdownFn = tp.Shutdown
	})
	return initErr
}

// Shutdown flushes any pending spans. Safe to call when Init was never
// invoked or tracing is disabled.
func Shutdown(ctx context.Context) error {
	if shutdownFn == nil {
		return nil
	}
	return shutdownFn(ctx)
}

// StartRequestSpan opens the root span for one client request and stashes it
// on the gin context's request context so downstream stages can attach
// children with StartStage.
func StartRequestSpan(c *gin.Context, name string) trace.Span {
	ctx, span := tracer.Start(c.Request.Context(), name,
		trace.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.FullPath()),
		),
	)
	c.Request = c.Request.WithContext(ctx)
	return span
}

// StartStage opens a child span for one dispatch pipeline stage (analyze,
// quota, cache, route) under the request's root span.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, stage)
}

// EndRequestSpan closes the root span, recording the final HTTP status and,
// for failures, marking the span's status as an error.
func EndRequestSpan(c *gin.Context, span trace.Span, err error) {
	status := c.Writer.Status()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if status >= 500 {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

// GetTraceID returns the w3c trace id associated with the gin context,
// falling back to gin-middlewares' request-scoped id when no span is active
// (tracing disabled) so log lines still correlate within one process.
func GetTraceID(c *gin.Context) string {
	if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	traceID, err := gmw.TraceID(c)
	if err != nil {
		gmw.GetLogger(c).Warn("failed to get trace ID from gin-middlewares", zap.Error(err))
		return ""
	}
	return traceID.String()
}

// GetTraceIDFromContext extracts the trace id from a standard context.Context
// carrying an active span.
func GetTraceIDFromContext(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	if ginCtx, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
		return GetTraceID(ginCtx)
	}
	logger.Logger.Warn("failed to get trace ID from context")
	return ""
}

// WithTraceID adds the trace id to structured logging fields.
func WithTraceID(c *gin.Context, fields ...zap.Field) []zap.Field {
	traceID := GetTraceID(c)
	if traceID == "" {
		return fields
	}
	return append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
}

// WithTraceIDFromContext adds the trace id to structured logging fields using
// only a standard context.Context.
func WithTraceIDFromContext(ctx context.Context, fields ...zap.Field) []zap.Field {
	traceID := GetTraceIDFromContext(ctx)
	if traceID == "" {
		return fields
	}
	return append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
}
