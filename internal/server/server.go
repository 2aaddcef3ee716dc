// Package server runs the request/response loop over the input and output
// channels.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
	"github.com/loqalabs/loqa-whisper/internal/stt"
	"github.com/loqalabs/loqa-whisper/internal/telemetry"
	"github.com/loqalabs/loqa-whisper/internal/validate"
	"github.com/loqalabs/loqa-whisper/internal/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type State int32

const (
	StateStarting State = iota
	StateReady
	StateProcessing
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ResultPublisher receives a copy of every response after it was written.
type ResultPublisher interface {
	Publish(requestID string, result protocol.TranscriptionResult) error
}

// Readiness is told when the server starts and stops accepting requests.
type Readiness interface {
	SetReady(bool)
}

type Options struct {
	Engine          stt.Engine
	Defaults        stt.Options
	Info            protocol.ServerInfo
	Input           io.Reader
	Output          io.Writer
	MaxRequestBytes int
	Logger          *slog.Logger

	// Optional.
	Tracer    trace.Tracer
	Recorder  telemetry.Recorder
	Publisher ResultPublisher
	Readiness Readiness
	Now       func() time.Time
}

type Server struct {
	engine     stt.Engine
	dispatcher *stt.Dispatcher
	info       protocol.ServerInfo
	reader     *wire.Reader
	writer     *wire.Writer
	logger     *slog.Logger
	tracer     trace.Tracer
	recorder   telemetry.Recorder
	publisher  ResultPublisher
	readiness  Readiness
	now        func() time.Time
	state      atomic.Int32
}

func New(opts Options) *Server {
	s := &Server{
		engine:     opts.Engine,
		dispatcher: stt.NewDispatcher(opts.Engine, opts.Defaults),
		info:       opts.Info,
		reader:     wire.NewReader(opts.Input, opts.MaxRequestBytes),
		writer:     wire.NewWriter(opts.Output),
		logger:     opts.Logger.With(slog.String("component", "server")),
		tracer:     opts.Tracer,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		readiness:  opts.Readiness,
		now:        opts.Now,
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
	}
	if s.recorder == nil {
		s.recorder = telemetry.NopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("state change", slog.String("from", prev.String()), slog.String("to", st.String()))
	}
}

type frame struct {
	doc []byte
	err error
}

// Run announces the server, then answers requests until the input ends,
// the output is gone, or ctx is cancelled. The engine is closed on return.
// Only a failure to announce is returned as an error.
func (s *Server) Run(ctx context.Context) error {
	s.setState(StateStarting)
	defer s.terminate()

	if err := s.writer.Write(s.info); err != nil {
		return fmt.Errorf("write server info: %w", err)
	}
	s.logger.Info("server ready",
		slog.String("provider", s.info.Provider),
		slog.String("model", s.info.ModelName))

	s.setState(StateReady)
	if s.readiness != nil {
		s.readiness.SetReady(true)
	}

	frames := make(chan frame)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(frames, done)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested")
			return nil
		case f := <-frames:
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					s.logger.Info("input closed")
					return nil
				}
				apiErr := new(apierror.Error)
				if !errors.As(f.err, &apiErr) {
					s.logger.Error("read failed", slog.String("error", f.err.Error()))
					return nil
				}
				if err := s.reject(ctx, apiErr); err != nil {
					return nil
				}
				continue
			}
			if err := s.handle(ctx, f.doc); err != nil {
				return nil
			}
		}
	}
}

// readLoop feeds documents to Run. It stops after delivering io.EOF or a
// read error, or once Run has returned.
func (s *Server) readLoop(frames chan<- frame, done <-chan struct{}) {
	for {
		doc, err := s.reader.Next()
		select {
		case frames <- frame{doc: doc, err: err}:
		case <-done:
			return
		}
		if err != nil {
			apiErr := new(apierror.Error)
			if !errors.As(err, &apiErr) {
				return
			}
		}
	}
}

func (s *Server) terminate() {
	s.setState(StateTerminating)
	if s.readiness != nil {
		s.readiness.SetReady(false)
	}
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("engine close failed", slog.String("error", err.Error()))
	}
}

// reject answers a framing failure that produced no document.
func (s *Server) reject(ctx context.Context, apiErr *apierror.Error) error {
	s.setState(StateProcessing)
	defer s.setState(StateReady)

	requestID := uuid.NewString()
	start := s.now()
	logger := s.logger.With(slog.String("request_id", requestID))
	ctx, span := s.tracer.Start(ctx, "transcription.request",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()
	span.SetAttributes(attribute.String("error.kind", apiErr.Kind.String()), attribute.Int("error.code", apiErr.Kind.Code()))
	span.SetStatus(codes.Error, apiErr.Error())

	logger.Warn("request rejected",
		slog.String("error_kind", apiErr.Kind.String()),
		slog.String("error", apiErr.Error()))
	result := protocol.ErrorResult(apiErr, s.now())
	s.recorder.Request(ctx, apiErr.Kind.String(), s.now().Sub(start))
	return s.respond(requestID, result, logger)
}

// handle produces exactly one response for doc. A non-nil error means the
// output channel is gone.
func (s *Server) handle(ctx context.Context, doc []byte) error {
	s.setState(StateProcessing)
	defer s.setState(StateReady)

	requestID := uuid.NewString()
	start := s.now()
	logger := s.logger.With(slog.String("request_id", requestID))
	ctx, span := s.tracer.Start(ctx, "transcription.request",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.Int("request.bytes", len(doc)),
		))
	defer span.End()

	result, apiErr := s.process(ctx, doc, logger)
	kind := ""
	if apiErr != nil {
		kind = apiErr.Kind.String()
		span.SetAttributes(attribute.String("error.kind", kind), attribute.Int("error.code", apiErr.Kind.Code()))
		span.SetStatus(codes.Error, apiErr.Error())
		logger.Warn("request failed",
			slog.String("error_kind", kind),
			slog.String("error", apiErr.Error()))
		result = protocol.ErrorResult(apiErr, s.now())
	} else {
		logger.Info("request processed",
			slog.Int("text_length", len(result.Text)),
			slog.Int64("duration_ms", derefInt64(result.DurationMS)))
	}
	s.recorder.Request(ctx, kind, s.now().Sub(start))
	return s.respond(requestID, result, logger)
}

func (s *Server) process(ctx context.Context, doc []byte, logger *slog.Logger) (protocol.TranscriptionResult, *apierror.Error) {
	req, err := validate.Request(doc)
	if err != nil {
		return protocol.TranscriptionResult{}, apierror.As(err)
	}
	logger.Debug("request validated",
		slog.String("variant", req.Variant),
		slog.String("format", req.Format),
		slog.Int("audio_bytes", len(req.PCM)))

	engineStart := s.now()
	result, err := s.dispatcher.Dispatch(ctx, req)
	s.recorder.Transcription(ctx, err == nil, s.now().Sub(engineStart), len(req.PCM))
	if err != nil {
		return protocol.TranscriptionResult{}, apierror.As(err)
	}
	return result, nil
}

// respond writes result and mirrors it to the publisher. Only a lost
// output channel is returned.
func (s *Server) respond(requestID string, result protocol.TranscriptionResult, logger *slog.Logger) error {
	if err := s.writer.Write(result); err != nil {
		logger.Error("write response failed", slog.String("error", err.Error()))
		if outputGone(err) {
			return err
		}
		return nil
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(requestID, result); err != nil {
			logger.Warn("publish result failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func outputGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.ErrShortWrite)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
