// Package telemetry connects the dispatcher to OpenTelemetry: Metrics
// implements outbox.Metrics with otel instruments and TracingPublisher wraps a
// Publisher with a producer span per message. Broker adapters inject the span
// context into message headers with the global propagator.
package telemetry
