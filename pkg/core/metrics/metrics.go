// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     metrics
// Description: OpenTelemetry instruments for the voice listener
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

// Package metrics provides the OpenTelemetry instruments recorded by the
// voice listener and the bootstrap of a Prometheus-backed MeterProvider.
// Tests should build a Metrics with NewNop or with their own MeterProvider.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all listener metrics
const meterName = "github.com/msto63/voicelistener"

// Metrics holds all instruments. Safe for concurrent use.
type Metrics struct {
	// Frames counts frames consumed by the processing loop
	Frames metric.Int64Counter

	// FramesDropped counts frames rejected by a full queue
	FramesDropped metric.Int64Counter

	// FramesFlushed counts frames purged when speech output starts
	FramesFlushed metric.Int64Counter

	// DetectorErrors counts classifier failures. Attribute: detector
	DetectorErrors metric.Int64Counter

	// WakeDetections counts accepted wake phrases. Attribute: phrase
	WakeDetections metric.Int64Counter

	// Sessions counts completed captures. Attribute: reason (silence|max_duration)
	Sessions metric.Int64Counter

	// SessionDuration tracks capture length
	SessionDuration metric.Float64Histogram

	// Dispatches counts dispatch results. Attribute: outcome
	Dispatches metric.Int64Counter

	// InFlight tracks dispatch pipelines currently running
	InFlight metric.Int64UpDownCounter

	// STTDuration, AgentDuration and SpeechDuration track stage latencies
	STTDuration    metric.Float64Histogram
	AgentDuration  metric.Float64Histogram
	SpeechDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// New creates all instruments from the given MeterProvider
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.Frames, err = m.Int64Counter("voicelistener.frames",
		metric.WithDescription("Audio frames consumed by the processing loop."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voicelistener.frames.dropped",
		metric.WithDescription("Audio frames rejected because the queue was full."),
	); err != nil {
		return nil, err
	}
	if met.FramesFlushed, err = m.Int64Counter("voicelistener.frames.flushed",
		metric.WithDescription("Queued audio frames discarded before speech output."),
	); err != nil {
		return nil, err
	}
	if met.DetectorErrors, err = m.Int64Counter("voicelistener.detector.errors",
		metric.WithDescription("Voice-activity and keyword spotter failures by detector."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("voicelistener.wake.detections",
		metric.WithDescription("Accepted wake phrases."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("voicelistener.sessions",
		metric.WithDescription("Completed capture sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voicelistener.session.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("voicelistener.dispatches",
		metric.WithDescription("Dispatch pipeline results by outcome."),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("voicelistener.dispatches.in_flight",
		metric.WithDescription("Dispatch pipelines currently running."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voicelistener.stt.duration",
		metric.WithDescription("Latency of transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentDuration, err = m.Float64Histogram("voicelistener.agent.duration",
		metric.WithDescription("Latency of agent calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("voicelistener.speech.duration",
		metric.WithDescription("Time spent rendering speech output."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNop returns Metrics backed by a no-op provider
func NewNop() *Metrics {
	m, err := New(noop.NewMeterProvider())
	if err != nil {
		panic("metrics: noop provider failed: " + err.Error())
	}
	return m
}

// RecordDetectorError increments the detector error counter
func (m *Metrics) RecordDetectorError(ctx context.Context, detector string) {
	m.DetectorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("detector", detector)))
}

// RecordWake increments the wake counter for phrase
func (m *Metrics) RecordWake(ctx context.Context, phrase string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("phrase", phrase)))
}

// RecordSession records a completed capture
func (m *Metrics) RecordSession(ctx context.Context, reason string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.Sessions.Add(ctx, 1, attrs)
	m.SessionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDispatch increments the dispatch counter for outcome
func (m *Metrics) RecordDispatch(ctx context.Context, outcome string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveSince records the time elapsed since start on h
func ObserveSince(ctx context.Context, h metric.Float64Histogram, start time.Time) {
	h.Record(ctx, time.Since(start).Seconds())
}
