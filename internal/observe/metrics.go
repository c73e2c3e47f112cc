// Package observe holds the OpenTelemetry metric instruments of the voice
// loop and the Prometheus bridge that exposes them on /metrics.
//
// A nil *Metrics is valid and records nothing, so collaborators can be built
// without a meter provider in tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/satriahrh/jumpgpt"

// Metrics holds the instruments recorded by the voice coordinator and chat
// services.
type Metrics struct {
	// StageDuration tracks latency of one network stage. Attributes:
	//   stage (transcription, completion, synthesis), status (ok, error)
	StageDuration metric.Float64Histogram

	// CyclesCompleted counts voice turns that ended with a played response
	CyclesCompleted metric.Int64Counter

	// VoiceErrors counts cycles that ended in the Error phase, by kind
	VoiceErrors metric.Int64Counter

	// FalseStarts counts activation attempts that dropped below threshold
	// before being confirmed.
	FalseStarts metric.Int64Counter

	// MessagesSent counts chat turns. Attributes: source (text, voice), status
	MessagesSent metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("jumpgpt.voice.stage.duration",
		metric.WithDescription("Latency of transcription, completion and synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CyclesCompleted, err = m.Int64Counter("jumpgpt.voice.cycles",
		metric.WithDescription("Voice turns that played a response."),
	); err != nil {
		return nil, err
	}
	if met.VoiceErrors, err = m.Int64Counter("jumpgpt.voice.errors",
		metric.WithDescription("Voice turns that failed, by error kind."),
	); err != nil {
		return nil, err
	}
	if met.FalseStarts, err = m.Int64Counter("jumpgpt.voice.false_starts",
		metric.WithDescription("Activation attempts abandoned before confirmation."),
	); err != nil {
		return nil, err
	}
	if met.MessagesSent, err = m.Int64Counter("jumpgpt.chat.messages",
		metric.WithDescription("Chat turns by source and status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records the latency of one stage
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status(err)),
		),
	)
}

// RecordCycle counts one completed voice turn
func (m *Metrics) RecordCycle(ctx context.Context) {
	if m == nil {
		return
	}
	m.CyclesCompleted.Add(ctx, 1)
}

// RecordVoiceError counts one failed voice turn
func (m *Metrics) RecordVoiceError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.VoiceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFalseStart counts one abandoned activation
func (m *Metrics) RecordFalseStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.FalseStarts.Add(ctx, 1)
}

// RecordMessage counts one chat turn
func (m *Metrics) RecordMessage(ctx context.Context, voice bool, err error) {
	if m == nil {
		return
	}
	source := "text"
	if voice {
		source = "voice"
	}
	m.MessagesSent.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status(err)),
		),
	)
}
