package nation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"openletter/internal/nation/metrics"
	"openletter/internal/nation/models"
	"openletter/internal/nation/store"
	"openletter/pkg/platform/circuit"
	"openletter/pkg/platform/sentinel"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   atomic.Int32
	entries map[string]*models.Entry
	err     error
	block   chan struct{}
}

func (f *stubFetcher) FetchNation(_ context.Context, name string) (*models.Entry, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if e, ok := f.entries[name]; ok {
		return e, nil
	}
	return nil, sentinel.ErrNotFound
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemoryStore
	fetcher *stubFetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.fetcher = &stubFetcher{entries: map[string]*models.Entry{}}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) service(opts ...Option) *Service {
	base := []Option{WithMetrics(s.metrics), WithLogger(s.logger)}
	return NewService(s.store, append(base, opts...)...)
}

func (s *ServiceSuite) TestCacheHit() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Entry{
		Name: "Testlandia", FlagURL: "https://example.test/t.svg", Region: "",
	}))

	got, err := s.service().Lookup(s.ctx, "Testlandia")
	s.Require().NoError(err)
	s.Equal("https://example.test/t.svg", got.FlagURL)
	s.Equal(models.UnknownRegion, got.Region)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheHits))
}

func (s *ServiceSuite) TestLookupMatchesAnySpelling() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Entry{Name: "The Testlandia", Region: "Testregionia"}))

	for _, name := range []string{"The Testlandia", "the testlandia", "THE_TESTLANDIA"} {
		got, err := s.service().Lookup(s.ctx, name)
		s.Require().NoError(err, name)
		s.Equal("Testregionia", got.Region, name)
	}
	s.Zero(s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestMissUnderNotFoundPolicySkipsUpstream() {
	svc := NewService(s.store, WithLogger(s.logger))
	_, err := svc.Lookup(s.ctx, "Testlandia")
	s.ErrorIs(err, ErrNotFound)
	s.Zero(s.fetcher.calls.Load())
	s.Equal(MissPolicyNotFound, svc.Policy())
}

func (s *ServiceSuite) TestMissUnderLivePolicyFetchesAndCaches() {
	s.fetcher.entries["testlandia"] = &models.Entry{
		Name: "Testlandia", FlagURL: "f", Region: "Testregionia", UpdatedAt: time.Now(),
	}
	svc := s.service(WithLiveFallback(s.fetcher))

	got, err := svc.Lookup(s.ctx, "testlandia")
	s.Require().NoError(err)
	s.Equal("Testregionia", got.Region)

	cached, err := s.store.Get(s.ctx, "Testlandia")
	s.Require().NoError(err)
	s.Equal("f", cached.FlagURL)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LiveLookups.WithLabelValues("found")))
}

func (s *ServiceSuite) TestMissWithFailingUpstreamReturnsNotFound() {
	s.fetcher.err = errors.New("connection refused")
	svc := s.service(WithLiveFallback(s.fetcher))

	_, err := svc.Lookup(s.ctx, "Testlandia")
	s.ErrorIs(err, ErrNotFound)
	s.NotContains(err.Error(), "connection refused")
}

func (s *ServiceSuite) TestRefreshInvalidatesNamesThatNoLongerResolve() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Entry{Name: "Ghostland", Region: "Gone"}))
	svc := s.service(WithLiveFallback(s.fetcher))

	_, err := svc.Refresh(s.ctx, "Ghostland")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.store.Get(s.ctx, "Ghostland")
	s.ErrorIs(err, store.ErrNotFound)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Invalidations))
}

func (s *ServiceSuite) TestRefreshIsNoopWithoutLivePolicy() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Entry{Name: "Testlandia"}))
	_, err := s.service().Refresh(s.ctx, "Testlandia")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.store.Get(s.ctx, "Testlandia")
	s.NoError(err)
}

func (s *ServiceSuite) TestOpenBreakerSkipsUpstream() {
	s.fetcher.err = errors.New("503")
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithOpenTimeout(time.Hour))
	svc := s.service(WithLiveFallback(s.fetcher), WithBreaker(breaker))

	for range 2 {
		_, _ = svc.Lookup(s.ctx, "Testlandia")
	}
	s.True(breaker.IsOpen())

	_, err := svc.Lookup(s.ctx, "Testlandia")
	s.ErrorIs(err, ErrNotFound)
	s.Equal(int32(2), s.fetcher.calls.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LiveLookups.WithLabelValues("skipped")))
}

func (s *ServiceSuite) TestConcurrentLookupsShareOneUpstreamCall() {
	s.fetcher.entries["Testlandia"] = &models.Entry{Name: "Testlandia", Region: "Testregionia"}
	s.fetcher.block = make(chan struct{})
	svc := s.service(WithLiveFallback(s.fetcher))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Lookup(s.ctx, "Testlandia")
			assert.NoError(s.T(), err)
			assert.Equal(s.T(), "Testregionia", got.Region)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(s.fetcher.block)
	wg.Wait()

	s.Equal(int32(1), s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestEnrich() {
	s.Require().NoError(s.store.UpsertBatch(s.ctx, []models.Entry{
		{Name: "Testlandia", FlagURL: "f1", Region: "r1"},
	}, time.Now()))

	got := s.service().Enrich(s.ctx, []string{"Testlandia", "testlandia", "Maxtopia"})
	s.Equal(models.DisplayData{FlagURL: "f1", Region: "r1"}, got["Testlandia"])
	s.Equal(models.DisplayData{FlagURL: "f1", Region: "r1"}, got["testlandia"])
	s.Equal(models.UnknownDisplay(), got["Maxtopia"])
}

func TestParseMissPolicy(t *testing.T) {
	for in, want := range map[string]MissPolicy{
		"":          MissPolicyNotFound,
		"not_found": MissPolicyNotFound,
		" LIVE ":    MissPolicyLive,
	} {
		got, err := ParseMissPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMissPolicy("sometimes")
	assert.Error(t, err)
}
