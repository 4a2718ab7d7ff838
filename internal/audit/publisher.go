package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"openletter/pkg/requestcontext"
)

// Publisher accepts events from request paths without blocking them. Events
// are buffered for a Worker; when the buffer is full the event is dropped and
// logged rather than slowing the caller down.
type Publisher struct {
	inbox   chan Event
	logger  *slog.Logger
	dropped atomic.Int64
	now     func() time.Time
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{inbox: make(chan Event, buffer), logger: logger, now: time.Now}
}

// Emit fills request metadata from ctx and queues the event.
func (p *Publisher) Emit(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now()
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientIP(ctx)
	}
	if e.Client == "" {
		if ua := requestcontext.UserAgent(ctx); ua != "" {
			e.Client = DescribeClient(ua)
		}
	}
	if e.Actor == "" {
		if subject := requestcontext.AdminSubject(ctx); subject != "" {
			e.Actor = subject
		} else {
			e.Actor = ActorPublic
		}
	}

	select {
	case p.inbox <- e:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", string(e.Action),
			"nation", e.Nation,
		)
	}
}

// Inbox is the channel a Worker drains.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
