// Package dump refreshes the nation cache from the daily nations dump.
//
// A run downloads the gzip-compressed XML export to a file of its own, streams
// it through a decompressor into a token-level parser, and writes records to
// the cache in batches. Parsing and writing run as two goroutines joined by a
// bounded channel, so a slow database pushes back on the parser instead of
// letting parsed batches pile up in memory. Batches are written in source
// order by a single writer. Each batch upsert commits on its own, so a failed
// run leaves earlier batches in place and a re-run converges.
package dump

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"openletter/internal/dump/metrics"
	"openletter/internal/nation/models"
	"openletter/internal/nation/store"
)

// ErrAlreadyRunning is returned when a run is requested while one is active
// in this process.
var ErrAlreadyRunning = errors.New("ingestion already running")

// ErrShuttingDown is returned by Trigger after Shutdown.
var ErrShuttingDown = errors.New("ingestion shutting down")

// Config tunes a pipeline.
type Config struct {
	BatchSize int
	// QueueDepth is how many parsed batches may wait for the writer.
	QueueDepth int
	// Timeout bounds a whole run. Zero means no bound.
	Timeout time.Duration
	// LockTTL is how long the cross-instance lock is held at most.
	LockTTL time.Duration
}

// Pipeline runs dump ingestion. At most one run is active at a time.
type Pipeline struct {
	store      store.Store
	downloader *Downloader
	cfg        Config
	locker     Locker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	running atomic.Bool
	// life is cancelled by Shutdown; runs started by Trigger end with it.
	life     context.Context
	stopLife context.CancelFunc
	lifeMu   sync.Mutex
	closed   bool
	runs     sync.WaitGroup

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	last      *Result
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLocker(l Locker) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.locker = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock sets the time source for run timestamps and updated_at values.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(st store.Store, dl *Downloader, cfg Config, opts ...Option) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4
	}
	life, stop := context.WithCancel(context.Background())
	p := &Pipeline{
		life:       life,
		stopLife:   stop,
		store:      st,
		downloader: dl,
		cfg:        cfg,
		locker:     localLock{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("openletter/dump"),
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one ingestion and returns its summary. It never panics on
// upstream or store failures; those are reported in the Result.
func (p *Pipeline) Run(ctx context.Context) Result {
	if !p.running.CompareAndSwap(false, true) {
		return Result{Message: ErrAlreadyRunning.Error(), StartedAt: p.now()}
	}
	defer p.running.Store(false)
	if !p.track() {
		return Result{Message: ErrShuttingDown.Error(), StartedAt: p.now()}
	}
	defer p.runs.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(p.life, cancel)()
	return p.run(ctx)
}

// Trigger starts a run in the background. The run outlives the request that
// triggered it but not the pipeline: Shutdown cancels it and waits for its
// cleanup. The outcome is reported through Status.
func (p *Pipeline) Trigger(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if !p.track() {
		p.running.Store(false)
		return ErrShuttingDown
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(p.life, cancel)
	go func() {
		defer p.runs.Done()
		defer p.running.Store(false)
		defer cancel()
		defer stop()
		p.run(runCtx)
	}()
	return nil
}

// Shutdown cancels any active run and waits until it has cleaned up, or until
// ctx ends.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.lifeMu.Lock()
	p.closed = true
	p.stopLife()
	p.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ingestion run: %w", ctx.Err())
	}
}

// track registers a run with Shutdown unless the pipeline is already closed.
func (p *Pipeline) track() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.closed {
		return false
	}
	p.runs.Add(1)
	return true
}

// RemoveStaleFiles clears dump files abandoned by an earlier process. Call it
// once at startup.
func (p *Pipeline) RemoveStaleFiles() (int, error) {
	return p.downloader.RemoveStale(p.lockTTL())
}

// Status returns the current state and the last finished run.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{State: p.state, Running: p.running.Load()}
	if st.Running && !p.startedAt.IsZero() {
		t := p.startedAt
		st.StartedAt = &t
	}
	if p.last != nil {
		r := *p.last
		st.Last = &r
	}
	return st
}

func (p *Pipeline) run(ctx context.Context) (res Result) {
	start := p.now()
	res.StartedAt = start
	p.mu.Lock()
	p.startedAt = start
	p.state = StateIdle
	p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "dump.run")
	defer span.End()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	var path string
	defer func() {
		if path != "" {
			p.setState(StateCleaningUp)
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				p.logger.ErrorContext(ctx, "failed to remove dump file", "path", path, "error", err)
			}
		}
		res.Duration = p.now().Sub(start)
		p.finish(ctx, span, res)
	}()

	release, err := p.locker.Acquire(ctx, p.lockTTL())
	if err != nil {
		return p.fail(res, "lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.WarnContext(ctx, "failed to release ingestion lock", "error", err)
		}
	}()

	if n, err := p.downloader.RemoveStale(p.lockTTL()); err != nil {
		p.logger.WarnContext(ctx, "failed to remove stale dump files", "error", err)
	} else if n > 0 {
		p.logger.InfoContext(ctx, "removed stale dump files", "count", n)
	}

	p.setState(StateDownloading)
	var size int64
	path, size, err = p.downloader.Download(ctx)
	if err != nil {
		return p.fail(res, "download", err)
	}
	p.metrics.RecordDownload(size)
	span.SetAttributes(attribute.Int64("dump.bytes", size))
	p.logger.InfoContext(ctx, "dump downloaded", "path", path, "bytes", size)

	stats, err := p.ingest(ctx, path)
	res.Count = stats.count
	res.Skipped = stats.skipped
	res.Batches = stats.batches
	if err != nil {
		return p.fail(res, "ingest", err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("ingested %d nations in %d batches, skipped %d malformed records",
		res.Count, res.Batches, res.Skipped)
	return res
}

type ingestStats struct {
	count   int
	batches int
	skipped int
}

func (p *Pipeline) ingest(ctx context.Context, path string) (ingestStats, error) {
	var stats ingestStats

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 64<<10))
	if err != nil {
		return stats, fmt.Errorf("decompress dump: %w", err)
	}
	defer zr.Close()

	dec := xml.NewDecoder(zr)
	dec.Entity = xml.HTMLEntity
	parser := NewParser(dec)

	p.setState(StateParsing)
	batches := make(chan []models.Entry, p.cfg.QueueDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return p.produce(gctx, parser, batches)
	})
	g.Go(func() error {
		return p.consume(gctx, batches, &stats)
	})
	err = g.Wait()
	stats.skipped = parser.Skipped()
	return stats, err
}

// produce parses records into batches in source order.
func (p *Pipeline) produce(ctx context.Context, parser *Parser, out chan<- []models.Entry) error {
	b := NewBatcher(p.cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parse dump after %d records: %w", parser.Records(), err)
		}
		if batch := b.Add(rec.Entry()); batch != nil {
			if err := send(ctx, out, batch); err != nil {
				return err
			}
		}
	}

	p.setState(StateDraining)
	if rest := b.Flush(); rest != nil {
		return send(ctx, out, rest)
	}
	return nil
}

func send(ctx context.Context, out chan<- []models.Entry, batch []models.Entry) error {
	select {
	case out <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consume is the single writer. One UpsertBatch per batch.
func (p *Pipeline) consume(ctx context.Context, in <-chan []models.Entry, stats *ingestStats) error {
	for batch := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.transition(StateParsing, StateFlushing)
		if err := p.flush(ctx, batch); err != nil {
			return fmt.Errorf("flush batch %d: %w", stats.batches+1, err)
		}
		stats.count += len(batch)
		stats.batches++
		p.transition(StateFlushing, StateParsing)
	}
	return nil
}

func (p *Pipeline) flush(ctx context.Context, batch []models.Entry) error {
	ctx, span := p.tracer.Start(ctx, "dump.flush", trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()

	start := time.Now()
	if err := p.store.UpsertBatch(ctx, batch, p.now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	p.metrics.RecordFlush(len(batch), time.Since(start))
	return nil
}

func (p *Pipeline) fail(res Result, stage string, err error) Result {
	res.Success = false
	switch {
	case errors.Is(err, ErrLockHeld):
		res.Message = "ingestion skipped: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		res.Message = fmt.Sprintf("ingestion %s timed out after %s", stage, p.cfg.Timeout)
	default:
		res.Message = fmt.Sprintf("ingestion %s failed: %v", stage, err)
	}
	return res
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, res Result) {
	p.mu.Lock()
	p.state = StateDone
	p.last = &res
	p.mu.Unlock()

	p.metrics.RecordRun(res.Success, res.Skipped, res.Duration, p.now())
	span.SetAttributes(
		attribute.Int("dump.records", res.Count),
		attribute.Int("dump.skipped", res.Skipped),
		attribute.Int("dump.batches", res.Batches),
	)

	if !res.Success {
		span.SetStatus(codes.Error, res.Message)
		p.logger.ErrorContext(ctx, "dump ingestion failed",
			"message", res.Message,
			"count", res.Count,
			"batches", res.Batches,
			"duration", res.Duration,
		)
		return
	}
	p.logger.InfoContext(ctx, "dump ingestion finished",
		"count", res.Count,
		"skipped", res.Skipped,
		"batches", res.Batches,
		"duration", res.Duration,
	)
}

func (p *Pipeline) lockTTL() time.Duration {
	switch {
	case p.cfg.LockTTL > 0:
		return p.cfg.LockTTL
	case p.cfg.Timeout > 0:
		return p.cfg.Timeout + time.Minute
	default:
		return time.Hour
	}
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// transition moves from one state to another only if the pipeline is still in
// from. The writer uses it so it never overwrites Draining set by the parser.
func (p *Pipeline) transition(from, to State) {
	p.mu.Lock()
	if p.state == from {
		p.state = to
	}
	p.mu.Unlock()
}
