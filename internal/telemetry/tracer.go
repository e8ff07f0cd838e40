package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used across gateway, read-plan, and origin spans.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	AttrHost       = "request.host"
	AttrPath       = "request.object_path"
	AttrRangeStart = "request.range_start"
	AttrRangeEnd   = "request.range_end"
	AttrStatus     = "response.status"
	AttrBytesSent  = "response.bytes_sent"

	AttrStepKind      = "plan.step_kind" // "cache" or "origin"
	AttrStepStart     = "plan.step_start"
	AttrStepEnd       = "plan.step_end"
	AttrBlockSize     = "cache.block_size"
	AttrBlockNum      = "cache.block_num"
	AttrObjectHash    = "cache.object_hash"
	AttrCoverageRatio = "cache.coverage_ratio"

	AttrOriginHost   = "origin.host"
	AttrOriginScheme = "origin.scheme"
	AttrFetchBytes   = "origin.fetch_bytes"

	AttrStoreName = "store.name"
)

// Span names for the request lifecycle.
const (
	SpanGatewayRequest   = "gateway.request"
	SpanReadPlanStep     = "readplan.step"
	SpanBlockstoreRead   = "blockstore.read"
	SpanBlockstoreWrite  = "blockstore.write"
	SpanObjectMetaOpen   = "objectmeta.open"
	SpanObjectMetaMark   = "objectmeta.mark_covered"
	SpanOriginFetch      = "fillcoordinator.origin_fetch"
	SpanOriginSplitWrite = "fillcoordinator.split_write"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Host returns an attribute for the request's Host header.
func Host(host string) attribute.KeyValue {
	return attribute.String(AttrHost, host)
}

// ObjectPath returns an attribute for the requested object path.
func ObjectPath(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// RangeSpan returns attributes describing a byte range.
func RangeSpan(start, end int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrRangeStart, start),
		attribute.Int64(AttrRangeEnd, end),
	}
}

// Status returns an attribute for the HTTP status code written.
func Status(code int) attribute.KeyValue {
	return attribute.Int(AttrStatus, code)
}

// BytesSent returns an attribute for the number of bytes streamed to the client.
func BytesSent(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytesSent, n)
}

// StepKind returns an attribute identifying a read-plan step as cache or origin.
func StepKind(kind string) attribute.KeyValue {
	return attribute.String(AttrStepKind, kind)
}

// BlockSize returns an attribute for the object's configured block size.
func BlockSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrBlockSize, size)
}

// BlockNum returns an attribute for a block index.
func BlockNum(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBlockNum, n)
}

// ObjectHash returns an attribute for a block file hash's filename prefix.
func ObjectHash(hash string) attribute.KeyValue {
	return attribute.String(AttrObjectHash, hash)
}

// OriginHost returns an attribute for the mapped origin host.
func OriginHost(host string) attribute.KeyValue {
	return attribute.String(AttrOriginHost, host)
}

// FetchBytes returns an attribute for the number of bytes fetched from origin.
func FetchBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrFetchBytes, n)
}

// StoreName returns an attribute for a store implementation's name.
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StartGatewayRequestSpan starts the root span for a gateway HTTP request.
func StartGatewayRequestSpan(ctx context.Context, host, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Host(host), ObjectPath(path)}, attrs...)
	return StartSpan(ctx, SpanGatewayRequest, trace.WithAttributes(allAttrs...))
}

// StartReadPlanStepSpan starts a child span for one synthesized read-plan step.
func StartReadPlanStepSpan(ctx context.Context, kind string, start, end int64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanReadPlanStep, trace.WithAttributes(
		StepKind(kind),
		attribute.Int64(AttrStepStart, start),
		attribute.Int64(AttrStepEnd, end),
	))
}

// StartOriginFetchSpan starts a span for an origin Range-fetch issued by the fill coordinator.
func StartOriginFetchSpan(ctx context.Context, host string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{OriginHost(host)}, attrs...)
	return StartSpan(ctx, SpanOriginFetch, trace.WithAttributes(allAttrs...))
}
