package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these keys
// consistently across all log statements so log aggregation and
// querying stays coherent across the dispatcher, registry, and
// control-plane API.
const (
	// Distributed tracing.
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Dispatch operation / channel identity.
	KeyDispatchOp  = "dispatch_op"  // CDO unique name (do<n>)
	KeyChannel     = "channel"      // channel object path
	KeyChannelType = "channel_type" // channel type tag
	KeyDirection   = "direction"    // incoming / outgoing
	KeyConnection  = "connection"   // connection object path
	KeyAccount     = "account"      // account object path

	// Client endpoints.
	KeyEndpoint = "endpoint" // well-known bus name
	KeyRole     = "role"     // observer / approver / handler

	// Dispatch-lock accounting.
	KeyObserversPending = "observers_pending"
	KeyApproversPending = "approvers_pending"

	// Handler selection.
	KeyHandler       = "handler"
	KeyFailedHandler = "failed_handler"
	KeyClaimer       = "claimer"

	// HTTP / control-plane.
	KeyRequestID  = "request_id"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyDurationMs = "duration_ms"

	// Storage backends.
	KeyBackend = "backend"

	// Error reporting.
	KeyError     = "error"
	KeyErrorName = "error_name"
)

// Protocol-free helpers mirroring the project's structured-attr style.

func DispatchOp(name string) slog.Attr { return slog.String(KeyDispatchOp, name) }
func Channel(path string) slog.Attr    { return slog.String(KeyChannel, path) }
func Endpoint(name string) slog.Attr   { return slog.String(KeyEndpoint, name) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, fmt.Sprintf("%v", err))
}
