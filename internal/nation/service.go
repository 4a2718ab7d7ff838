// Package nation serves the flag and region shown next to each signature.
package nation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"openletter/internal/nation/metrics"
	"openletter/internal/nation/models"
	"openletter/internal/nation/store"
	id "openletter/pkg/domain"
	"openletter/pkg/platform/circuit"
	"openletter/pkg/platform/sentinel"
)

// ErrNotFound is the only error Lookup returns.
var ErrNotFound = sentinel.ErrNotFound

// MissPolicy decides what a cache miss does.
type MissPolicy string

const (
	// MissPolicyNotFound reports a miss as not found; the dump ingestion is
	// the only thing that populates the cache.
	MissPolicyNotFound MissPolicy = "not_found"
	// MissPolicyLive looks the nation up upstream and caches the result.
	MissPolicyLive MissPolicy = "live"
)

// ParseMissPolicy accepts "not_found" or "live". Empty means not_found.
func ParseMissPolicy(s string) (MissPolicy, error) {
	switch MissPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissPolicyNotFound:
		return MissPolicyNotFound, nil
	case MissPolicyLive:
		return MissPolicyLive, nil
	default:
		return "", fmt.Errorf("unknown cache miss policy %q", s)
	}
}

// Fetcher looks a single nation up upstream. Unknown nations and unusable
// responses must match sentinel.ErrNotFound.
type Fetcher interface {
	FetchNation(ctx context.Context, name string) (*models.Entry, error)
}

// Service reads the nation cache and, under MissPolicyLive, fills it.
type Service struct {
	store   store.Store
	fetcher Fetcher
	policy  MissPolicy
	breaker *circuit.Breaker
	flight  singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLiveFallback enables MissPolicyLive using fetcher.
func WithLiveFallback(fetcher Fetcher) Option {
	return func(s *Service) {
		if fetcher != nil {
			s.fetcher = fetcher
			s.policy = MissPolicyLive
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		policy:  MissPolicyNotFound,
		breaker: circuit.New("nsapi"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active miss policy.
func (s *Service) Policy() MissPolicy {
	return s.policy
}

// Lookup returns display data for name, reading the cache by id.NationKey so
// any spelling the game accepts finds the entry. It returns ErrNotFound for anything it cannot resolve and never any other error.
func (s *Service) Lookup(ctx context.Context, name string) (models.DisplayData, error) {
	start := time.Now()
	name = strings.TrimSpace(name)
	if name == "" {
		return models.DisplayData{}, ErrNotFound
	}

	entry, err := s.store.Get(ctx, name)
	switch {
	case err == nil:
		s.metrics.RecordCacheHit(time.Since(start).Seconds())
		return entry.Display(), nil
	case !errors.Is(err, store.ErrNotFound):
		s.logger.ErrorContext(ctx, "nation cache read failed", "nation", name, "error", err)
	}
	s.metrics.RecordCacheMiss(time.Since(start).Seconds())

	if s.policy != MissPolicyLive {
		return models.DisplayData{}, ErrNotFound
	}
	return s.live(ctx, name)
}

// Refresh re-fetches name upstream regardless of what is cached, so stale
// entries are updated and names that no longer resolve are dropped. It is a
// no-op returning ErrNotFound unless the live policy is active.
func (s *Service) Refresh(ctx context.Context, name string) (models.DisplayData, error) {
	name = strings.TrimSpace(name)
	if s.policy != MissPolicyLive || name == "" {
		return models.DisplayData{}, ErrNotFound
	}
	return s.live(ctx, name)
}

// live collapses concurrent lookups of one name into a single upstream call.
func (s *Service) live(ctx context.Context, name string) (models.DisplayData, error) {
	if !s.breaker.Allow() {
		s.metrics.RecordLiveLookup("skipped")
		return models.DisplayData{}, ErrNotFound
	}

	v, err, _ := s.flight.Do(id.NationKey(name), func() (any, error) {
		return s.fetch(ctx, name)
	})
	if err != nil {
		return models.DisplayData{}, ErrNotFound
	}
	return v.(models.DisplayData), nil
}

func (s *Service) fetch(ctx context.Context, name string) (models.DisplayData, error) {
	entry, err := s.fetcher.FetchNation(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// The upstream answered, so it is healthy.
			s.breaker.RecordSuccess()
			s.metrics.RecordLiveLookup("not_found")
			s.invalidate(ctx, name)
			return models.DisplayData{}, ErrNotFound
		}
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "nation lookups circuit opened", "breaker", s.breaker.Name())
		}
		s.metrics.RecordLiveLookup("error")
		s.logger.WarnContext(ctx, "live nation lookup failed", "nation", name, "error", err)
		return models.DisplayData{}, err
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "nation lookups circuit closed", "breaker", s.breaker.Name())
	}
	s.metrics.RecordLiveLookup("found")

	// Cache under the upstream's spelling of the name.
	if err := s.store.Upsert(ctx, *entry); err != nil {
		s.logger.ErrorContext(ctx, "nation cache write failed", "nation", entry.Name, "error", err)
	}
	return entry.Display(), nil
}

func (s *Service) invalidate(ctx context.Context, name string) {
	if _, err := s.store.Get(ctx, name); err != nil {
		return
	}
	if err := s.store.Delete(ctx, name); err != nil {
		s.logger.ErrorContext(ctx, "nation cache invalidation failed", "nation", name, "error", err)
		return
	}
	s.metrics.RecordInvalidation()
	s.logger.InfoContext(ctx, "nation cache entry invalidated", "nation", name)
}

// Enrich returns display data for every name in one cache read. Names with no
// entry get UnknownDisplay. There is no live fallback here; a list page can
// hold hundreds of names.
func (s *Service) Enrich(ctx context.Context, names []string) map[string]models.DisplayData {
	out := make(map[string]models.DisplayData, len(names))
	entries, err := s.store.GetMany(ctx, names)
	if err != nil {
		s.logger.ErrorContext(ctx, "nation cache batch read failed", "count", len(names), "error", err)
		entries = nil
	}
	for _, name := range names {
		if e, ok := entries[id.NationKey(name)]; ok {
			out[name] = e.Display()
			continue
		}
		out[name] = models.UnknownDisplay()
	}
	return out
}
