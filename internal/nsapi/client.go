// Package nsapi talks to the NationStates public API. Every outbound call goes
// through the shared throttle so the whole process stays under the upstream
// rate limit.
package nsapi

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"openletter/internal/nation/models"
	"openletter/internal/throttle"
	id "openletter/pkg/domain"
)

// DefaultBaseURL is the API endpoint for single-nation calls.
const DefaultBaseURL = "https://www.nationstates.net/cgi-bin/api.cgi"

const (
	opVerify = "verify"
	opFetch  = "fetch_nation"

	maxVerifyBody = 1 << 10
	maxNationBody = 1 << 20
)

// Client performs verify and nation lookups.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	throttle  *throttle.Throttle
	signer    *TokenSigner
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		if u != "" {
			cl.baseURL = u
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithClock sets the time stamped on fetched entries.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// New builds a client. The upstream rejects requests without a descriptive
// User-Agent, so one is required.
func New(userAgent string, th *throttle.Throttle, signer *TokenSigner, opts ...Option) (*Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("nsapi: user agent is required")
	}
	if th == nil {
		return nil, errors.New("nsapi: throttle is required")
	}
	if signer == nil {
		return nil, ErrMissingSecret
	}
	c := &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		baseURL:   DefaultBaseURL,
		userAgent: userAgent,
		throttle:  th,
		signer:    signer,
		logger:    slog.Default(),
		tracer:    otel.Tracer("openletter/nsapi"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the site token for nation, as rendered on the signing page.
func (c *Client) Token(nation string) string {
	return c.signer.Token(nation)
}

// Verify reports whether checksum proves control of nation. Every failure is
// logged and reported as false.
func (c *Client) Verify(ctx context.Context, nation, checksum string) bool {
	ctx, span := c.tracer.Start(ctx, "nsapi.verify", trace.WithAttributes(attribute.String("nation", nation)))
	defer span.End()

	ok, err := throttle.Call(ctx, c.throttle, opVerify, func(ctx context.Context) (bool, error) {
		return c.verify(ctx, nation, checksum)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetCategory(err)))
		c.logger.WarnContext(ctx, "nation verification call failed",
			"nation", nation,
			"category", string(GetCategory(err)),
			"error", err,
		)
		return false
	}
	span.SetAttributes(attribute.Bool("verified", ok))
	return ok
}

func (c *Client) verify(ctx context.Context, nation, checksum string) (bool, error) {
	q := url.Values{}
	q.Set("a", "verify")
	q.Set("nation", id.NationKey(nation))
	q.Set("checksum", checksum)
	q.Set("token", c.signer.Token(nation))

	body, err := c.get(ctx, opVerify, nation, q, maxVerifyBody)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(body)) == "1", nil
}

type nationXML struct {
	XMLName xml.Name `xml:"NATION"`
	Name    string   `xml:"NAME"`
	Flag    string   `xml:"FLAG"`
	Region  string   `xml:"REGION"`
}

// FetchNation looks nation up live. An unknown nation, a body without a NAME
// and a body that is not XML all match sentinel.ErrNotFound.
func (c *Client) FetchNation(ctx context.Context, nation string) (*models.Entry, error) {
	ctx, span := c.tracer.Start(ctx, "nsapi.fetch_nation", trace.WithAttributes(attribute.String("nation", nation)))
	defer span.End()

	entry, err := throttle.Call(ctx, c.throttle, opFetch, func(ctx context.Context) (*models.Entry, error) {
		return c.fetchNation(ctx, nation)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetCategory(err)))
		return nil, err
	}
	return entry, nil
}

func (c *Client) fetchNation(ctx context.Context, nation string) (*models.Entry, error) {
	q := url.Values{}
	q.Set("nation", id.NationKey(nation))
	q.Set("q", "name flag region")

	body, err := c.get(ctx, opFetch, nation, q, maxNationBody)
	if err != nil {
		return nil, err
	}

	var doc nationXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, newAPIError(ErrorBadData, opFetch, nation, http.StatusOK, err)
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, newAPIError(ErrorBadData, opFetch, nation, http.StatusOK, errors.New("response has no NAME"))
	}
	return &models.Entry{
		Name:      name,
		FlagURL:   models.FlagURL(doc.Flag),
		Region:    models.RegionOrUnknown(doc.Region),
		UpdatedAt: c.now(),
	}, nil
}

// get issues one GET and returns the body of a 2xx response. A 429 comes back
// as *throttle.RateLimitedError so the throttle requeues the call.
func (c *Client) get(ctx context.Context, op, nation string, q url.Values, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, newAPIError(ErrorInternal, op, nation, 0, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newAPIError(transportCategory(err), op, nation, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, limit))
		return nil, &throttle.RateLimitedError{
			RetryAfter: retryAfter(resp.Header, c.now()),
			Err:        newAPIError(ErrorRateLimited, op, nation, resp.StatusCode, nil),
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, newAPIError(ErrorNotFound, op, nation, resp.StatusCode, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newAPIError(ErrorOutage, op, nation, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, newAPIError(transportCategory(err), op, nation, resp.StatusCode, err)
	}
	return body, nil
}

func transportCategory(err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTimeout
	}
	return ErrorOutage
}

// retryAfter reads the back-off the upstream asked for. Zero means none was
// given and lets the throttle fall back to its own default.
func retryAfter(h http.Header, now time.Time) time.Duration {
	for _, key := range []string{"Retry-After", "X-Retry-After", "X-RateLimit-Retry-After"} {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			if secs <= 0 {
				return 0
			}
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

