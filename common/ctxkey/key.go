// Package ctxkey names the gin.Context keys shared across middleware and
// handlers, so every Set/Get pair agrees on the same string literal.
package ctxkey

const (
	// RequestId is a per-request unique identifier, echoed back in the
	// x-request-id response header.
	// Set in: middleware.RequestId.
	// Read in: logging and the response header it's echoed in.
	RequestId = "request_id"

	// Meta holds the aggregated per-attempt dispatch context (relay/meta.GetByContext).
	// Set in: relay/meta after composing fields from context and request.
	// Read widely anywhere Meta is needed (billing, adaptors, response handling).
	Meta = "meta"

	// TenantKey holds the resolved *model.TenantKey for the current request.
	// Set in: middleware.TenantAuth.
	// Read in: internal/dataplane handlers and internal/dispatch.
	TenantKey = "tenant_key"

	// TraceID is the OpenTelemetry trace id rendered as a hex string, mirrored
	// into the gin context so handlers can echo it in the x-trace-id response header.
	// Set in: middleware.Tracing.
	TraceID = "trace_id"
)
