package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for dispatch operations.
const (
	AttrDispatchOp    = "dispatch.op"       // CDO unique object path
	AttrChannel       = "dispatch.channel"  // channel object path
	AttrChannelType   = "dispatch.type"     // channel type string
	AttrDirection     = "dispatch.dir"      // incoming/outgoing
	AttrEndpoint      = "dispatch.endpoint" // well-known client name
	AttrRole          = "dispatch.role"     // observer/approver/handler
	AttrHandler       = "dispatch.handler"
	AttrFailedHandler = "dispatch.failed_handler"
	AttrClaimer       = "dispatch.claimer"
	AttrFinishReason  = "dispatch.finish_reason"
	AttrErrorName     = "dispatch.error_name"
)

// Span names for dispatch operations.
const (
	SpanConstruct     = "dispatch.construct"
	SpanObserve       = "dispatch.observe"
	SpanApprove       = "dispatch.approve"
	SpanHandle        = "dispatch.handle"
	SpanFinish        = "dispatch.finish"
	SpanRedispatch    = "dispatch.redispatch"
	SpanClientOutcall = "clientproxy.call"
)

// DispatchOp returns an attribute for a CDO's unique object path.
func DispatchOp(path string) attribute.KeyValue {
	return attribute.String(AttrDispatchOp, path)
}

// Channel returns an attribute for a channel's object path.
func Channel(path string) attribute.KeyValue {
	return attribute.String(AttrChannel, path)
}

// ChannelType returns an attribute for a channel's type string.
func ChannelType(t string) attribute.KeyValue {
	return attribute.String(AttrChannelType, t)
}

// Endpoint returns an attribute for a registered endpoint's well-known name.
func Endpoint(name string) attribute.KeyValue {
	return attribute.String(AttrEndpoint, name)
}

// Role returns an attribute for a client role (observer/approver/handler).
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// Handler returns an attribute for the handler that accepted a channel.
func Handler(name string) attribute.KeyValue {
	return attribute.String(AttrHandler, name)
}

// FailedHandler returns an attribute for a handler a channel was excluded
// from on redispatch.
func FailedHandler(name string) attribute.KeyValue {
	return attribute.String(AttrFailedHandler, name)
}

// Claimer returns an attribute for the well-known name that claimed a CDO.
func Claimer(name string) attribute.KeyValue {
	return attribute.String(AttrClaimer, name)
}

// FinishReason returns an attribute for why a CDO finished.
func FinishReason(reason string) attribute.KeyValue {
	return attribute.String(AttrFinishReason, reason)
}

// ErrorName returns an attribute for a D-Bus-style error name.
func ErrorName(name string) attribute.KeyValue {
	return attribute.String(AttrErrorName, name)
}

// StartDispatchSpan starts a span for a CDO lifecycle step, tagging it with
// the CDO's object path and any additional attributes.
func StartDispatchSpan(ctx context.Context, spanName, cdoPath string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{DispatchOp(cdoPath)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartClientOutcallSpan starts a span for a CDO -> client HTTP out-call.
func StartClientOutcallSpan(ctx context.Context, endpoint string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Endpoint(endpoint)}, attrs...)
	return StartSpan(ctx, SpanClientOutcall, trace.WithAttributes(allAttrs...))
}
