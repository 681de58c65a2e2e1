// Package observe provides application-wide observability primitives for the
// voice ninja client: OpenTelemetry metrics, tracing, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the telemetry endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "github.com/snakescriptdev/voice-ninja-client"

// Metrics holds all OpenTelemetry metric instruments for the client.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks dial plus handshake latency.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts microphone audio frames transmitted to the agent.
	FramesSent metric.Int64Counter

	// FramesReceived counts agent audio frames delivered to playback.
	FramesReceived metric.Int64Counter

	// DecodeErrors counts inbound audio payloads that failed to decode.
	// Use with attribute: attribute.String("mode", ...)
	DecodeErrors metric.Int64Counter

	// BargeIns counts barge-in interruptions triggered by the user.
	BargeIns metric.Int64Counter

	// Transcripts counts transcript lines by speaker. Use with attribute:
	//   attribute.String("role", ...)
	Transcripts metric.Int64Counter

	// VoiceCommands counts recognised voice commands. Use with attribute:
	//   attribute.String("command", ...)
	VoiceCommands metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversation sessions.
	// For this client it is 0 or 1; the gauge shape keeps dashboards uniform
	// across fleet deployments.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks telemetry endpoint request time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// connection establishment latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("ninja.connect.duration",
		metric.WithDescription("Latency of dialing and completing the session handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("ninja.audio.frames_sent",
		metric.WithDescription("Total microphone frames transmitted to the agent."),
	); err != nil {
		return nil, err
	}
	if met.FramesReceived, err = m.Int64Counter("ninja.audio.frames_received",
		metric.WithDescription("Total agent audio frames delivered to playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("ninja.audio.decode_errors",
		metric.WithDescription("Total inbound audio payloads that failed to decode, by mode."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("ninja.barge_ins",
		metric.WithDescription("Total barge-in interruptions triggered by the user."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("ninja.transcripts",
		metric.WithDescription("Total transcript lines by speaker role."),
	); err != nil {
		return nil, err
	}
	if met.VoiceCommands, err = m.Int64Counter("ninja.voice_commands",
		metric.WithDescription("Total recognised voice commands by command name."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("ninja.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ninja.http.request.duration",
		metric.WithDescription("Telemetry endpoint request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordConnect records one connection attempt with its latency and outcome.
func (m *Metrics) RecordConnect(ctx context.Context, seconds float64, status string) {
	m.ConnectDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDecodeError records one inbound payload that failed to decode.
func (m *Metrics) RecordDecodeError(ctx context.Context, mode string) {
	m.DecodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordTranscript records one transcript line for the given speaker role.
func (m *Metrics) RecordTranscript(ctx context.Context, role string) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordVoiceCommand records one recognised voice command.
func (m *Metrics) RecordVoiceCommand(ctx context.Context, command string) {
	m.VoiceCommands.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command", command)),
	)
}
