package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sink persists or forwards audit events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// DefaultWriteTimeout bounds a single sink write.
const DefaultWriteTimeout = 10 * time.Second

// Worker consumes audit events from a channel and hands them to its sinks. A
// failing or slow sink is logged and does not stop the worker or the other
// sinks; each sink write gets its own timeout.
type Worker struct {
	sinks        []Sink
	inbox        <-chan Event
	writeTimeout time.Duration
	logger       *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWriteTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.writeTimeout = d
		}
	}
}

// NewWorker drains inbox into sink. A MultiSink is unpacked so every member
// is written and timed separately.
func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	sinks := []Sink{sink}
	if m, ok := sink.(MultiSink); ok {
		sinks = m
	}
	w := &Worker{sinks: sinks, inbox: inbox, writeTimeout: DefaultWriteTimeout, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the inbox until ctx is cancelled, then writes whatever is still
// buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-w.inbox:
			w.write(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			w.write(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) write(ctx context.Context, event Event) {
	for _, sink := range w.sinks {
		wctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
		err := sink.Write(wctx, event)
		cancel()
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to write audit event",
				"action", string(event.Action),
				"nation", event.Nation,
				"sink", fmt.Sprintf("%T", sink),
				"error", err,
			)
		}
	}
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"action", string(e.Action),
		"nation", e.Nation,
		"signature_id", e.SignatureID,
		"actor", e.Actor,
		"client", e.Client,
		"client_ip", e.ClientIP,
		"request_id", e.RequestID,
		"detail", e.Detail,
		"timestamp", e.Timestamp,
	)
	return nil
}

// MultiSink writes to each sink in turn and returns the first error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
