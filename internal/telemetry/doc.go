// Package telemetry exports vectorizer traces and metrics over OTLP.
//
// When telemetry is enabled, New installs an OpenTelemetry TracerProvider
// and MeterProvider that push to a collector (gRPC or HTTP/protobuf). The
// pipeline opens one span per command and per stage, and the embedding
// worker records its model-call instruments on the Meter. When disabled,
// Tracer and Meter return the global no-op implementations.
//
// Telemetry failures never fail a run: a provider that cannot be built is
// logged and the instance degrades to no-op for that signal.
//
// Configuration:
//
//	[telemetry]
//	enabled = true
//	endpoint = "localhost:4317"
//	protocol = "grpc"        # or "http/protobuf"
//	insecure = true          # local endpoints only
//	sample_rate = 1.0
//	export_interval = "15s"
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
