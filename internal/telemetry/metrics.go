package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder receives per-request measurements from the server loop.
type Recorder interface {
	// Request records one answered request. kind is empty on success.
	Request(ctx context.Context, kind string, elapsed time.Duration)
	// Transcription records one engine call.
	Transcription(ctx context.Context, success bool, elapsed time.Duration, audioBytes int)
}

type otelRecorder struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	transcriptions  metric.Int64Counter
	engineDuration  metric.Float64Histogram
	audioBytes      metric.Int64Counter
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (Recorder, error) {
	var (
		r    otelRecorder
		err  error
		errs []error
	)
	r.requests, err = meter.Int64Counter("loqa_whisper.requests",
		metric.WithDescription("Requests answered, by outcome and error kind"))
	errs = append(errs, err)
	r.requestDuration, err = meter.Float64Histogram("loqa_whisper.request.duration",
		metric.WithDescription("Time from document read to response written"),
		metric.WithUnit("ms"))
	errs = append(errs, err)
	r.transcriptions, err = meter.Int64Counter("loqa_whisper.transcriptions",
		metric.WithDescription("Engine calls, by success"))
	errs = append(errs, err)
	r.engineDuration, err = meter.Float64Histogram("loqa_whisper.transcription.duration",
		metric.WithDescription("Engine call latency"),
		metric.WithUnit("ms"))
	errs = append(errs, err)
	r.audioBytes, err = meter.Int64Counter("loqa_whisper.audio.bytes",
		metric.WithDescription("Decoded PCM bytes handed to the engine"),
		metric.WithUnit("By"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *otelRecorder) Request(ctx context.Context, kind string, elapsed time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("error_kind", kind),
	)
	r.requests.Add(ctx, 1, attrs)
	r.requestDuration.Record(ctx, millis(elapsed), attrs)
}

func (r *otelRecorder) Transcription(ctx context.Context, success bool, elapsed time.Duration, audioBytes int) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	r.transcriptions.Add(ctx, 1, attrs)
	r.engineDuration.Record(ctx, millis(elapsed), attrs)
	r.audioBytes.Add(ctx, int64(audioBytes))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Request(context.Context, string, time.Duration) {}
func (NopRecorder) Transcription(context.Context, bool, time.Duration, int) {}
