// Package client calls a counterpart's versions and credentials endpoints.
//
// Every call is bounded by a per-attempt timeout, throttled per host and
// guarded by a per-host circuit breaker. GETs retry on transport failures
// and 5xx answers. Credentials writes retry only when the request never
// left this process, since a delivered POST or PUT may already have
// rotated the counterpart's token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/circuit"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

const tracerName = "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/client"

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5.0
	DefaultRetries   = 3
	DefaultBaseDelay = 500 * time.Millisecond
)

// Headers sent on every outbound call.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

var (
	// ErrNotDelivered means the request never reached the counterpart:
	// dial failure, open breaker, or cancellation before sending.
	ErrNotDelivered = errors.New("request not delivered")
	// ErrNoResponse means the request was sent but no usable answer came
	// back, so the counterpart may or may not have acted on it.
	ErrNoResponse = errors.New("no usable response")
	// ErrRejected means the counterpart answered with an HTTP or OCPI error.
	ErrRejected = errors.New("rejected by counterpart")
)

// Auth is the token we present and its wire encoding.
type Auth struct {
	Token  partyModels.AccessToken
	Base64 bool
}

func (a Auth) header() string {
	return "Token " + a.Token.Encode(a.Base64)
}

type envelope struct {
	Data          json.RawMessage `json:"data"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
}

type host struct {
	limiter *rate.Limiter
	breaker *circuit.Breaker
}

// Client is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	timeout     time.Duration
	rps         float64
	maxRetries  uint64
	baseDelay   time.Duration
	breakerOpts []circuit.Option

	mu    sync.Mutex
	hosts map[string]*host
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets requests per second per counterpart host.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rps = rps
		}
	}
}

// WithRetries sets the retry count and the first backoff interval.
func WithRetries(max uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		if base > 0 {
			c.baseDelay = base
		}
	}
}

// WithBreakerOptions configures the per-host circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(c *Client) {
		c.breakerOpts = opts
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		timeout:    DefaultTimeout,
		rps:        DefaultRateLimit,
		maxRetries: DefaultRetries,
		baseDelay:  DefaultBaseDelay,
		hosts:      make(map[string]*host),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Versions fetches the counterpart's versions list.
func (c *Client) Versions(ctx context.Context, versionsURL string, auth Auth) ([]models.VersionInfo, error) {
	data, err := c.call(ctx, "versions", http.MethodGet, versionsURL, auth, nil)
	if err != nil {
		return nil, err
	}
	var out []models.VersionInfo
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("versions", err)
	}
	return out, nil
}

// Details fetches the endpoint catalogue of one version.
func (c *Client) Details(ctx context.Context, detailsURL string, auth Auth) (models.VersionDetails, error) {
	data, err := c.call(ctx, "details", http.MethodGet, detailsURL, auth, nil)
	if err != nil {
		return models.VersionDetails{}, err
	}
	var out models.VersionDetails
	if err := json.Unmarshal(data, &out); err != nil {
		return models.VersionDetails{}, malformed("details", err)
	}
	return out, nil
}

// PostCredentials registers with the counterpart and returns the raw
// credentials object it answered with.
func (c *Client) PostCredentials(ctx context.Context, credentialsURL string, auth Auth, body any) (json.RawMessage, error) {
	return c.call(ctx, "post_credentials", http.MethodPost, credentialsURL, auth, body)
}

// PutCredentials renews the registration and returns the raw credentials
// object the counterpart answered with.
func (c *Client) PutCredentials(ctx context.Context, credentialsURL string, auth Auth, body any) (json.RawMessage, error) {
	return c.call(ctx, "put_credentials", http.MethodPut, credentialsURL, auth, body)
}

// DeleteCredentials ends the registration on the counterpart's side.
func (c *Client) DeleteCredentials(ctx context.Context, credentialsURL string, auth Auth) error {
	_, err := c.call(ctx, "delete_credentials", http.MethodDelete, credentialsURL, auth, nil)
	return err
}

func (c *Client) call(ctx context.Context, op, method, target string, auth Auth, body any) (json.RawMessage, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, dErrors.New(dErrors.CodeUpstream, "invalid counterpart url "+target)
	}
	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode "+op+" body")
		}
	}

	ctx, span := c.tracer.Start(ctx, "ocpi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
			attribute.String("ocpi.operation", op),
		),
	)
	defer span.End()

	h := c.host(u.Host)
	idempotent := method == http.MethodGet
	attempts := 0
	var data json.RawMessage

	operation := func() error {
		attempts++
		res, err := c.attempt(ctx, h, method, target, auth, payload)
		if err == nil {
			data = res
			return nil
		}
		if retryable(err, idempotent) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "outbound call failed, retrying",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"host", u.Host,
			"wait", wait,
			"error", err,
		)
	}

	err = backoff.RetryNotify(operation, c.policy(ctx), notify)
	span.SetAttributes(attribute.Int("ocpi.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrementOutbound(op, outcome(err))
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, op+" call to "+u.Host+" failed")
	}
	span.SetStatus(codes.Ok, "")
	c.metrics.IncrementOutbound(op, "ok")
	return data, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

func (c *Client) attempt(ctx context.Context, h *host, method, target string, auth Auth, payload []byte) (json.RawMessage, error) {
	if !h.breaker.Allow() {
		return nil, fmt.Errorf("circuit %s open: %w: %w", h.breaker.Name(), ErrNotDelivered, sentinel.ErrUnavailable)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w: %w", ErrNotDelivered, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", ErrNotDelivered, err)
	}
	req.Header.Set("Authorization", auth.header())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	correlationID := requestcontext.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set(HeaderCorrelationID, correlationID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(ctx, h)
		if isDialError(err) {
			return nil, fmt.Errorf("%s %s: %w: %w", method, target, ErrNotDelivered, err)
		}
		return nil, fmt.Errorf("%s %s: %w: %w", method, target, ErrNoResponse, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	if err != nil {
		c.recordFailure(ctx, h)
		return nil, fmt.Errorf("read response: %w: %w", ErrNoResponse, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordFailure(ctx, h)
		return nil, &StatusError{HTTPStatus: resp.StatusCode}
	}
	// Any answer below 500 proves the counterpart is up.
	c.recordSuccess(ctx, h)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &StatusError{HTTPStatus: resp.StatusCode}
		}
		return nil, fmt.Errorf("decode envelope: %w: %w", ErrNoResponse, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || env.StatusCode < 1000 || env.StatusCode >= 2000 {
		return nil, &StatusError{HTTPStatus: resp.StatusCode, StatusCode: env.StatusCode, Message: env.StatusMessage}
	}
	return env.Data, nil
}

func (c *Client) host(name string) *host {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hosts[name]
	if !ok {
		h = &host{
			limiter: rate.NewLimiter(rate.Limit(c.rps), 1),
			breaker: circuit.New(name, c.breakerOpts...),
		}
		c.hosts[name] = h
	}
	return h
}

func (c *Client) recordFailure(ctx context.Context, h *host) {
	if _, change := h.breaker.RecordFailure(); change.Opened {
		c.metrics.IncrementBreakerOpened()
		c.logger.WarnContext(ctx, "circuit opened", "host", h.breaker.Name())
	}
}

func (c *Client) recordSuccess(ctx context.Context, h *host) {
	if _, change := h.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "circuit closed", "host", h.breaker.Name())
	}
}

// StatusError is an HTTP or OCPI error answer.
type StatusError struct {
	HTTPStatus int
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := "http " + strconv.Itoa(e.HTTPStatus)
	if e.StatusCode != 0 {
		msg += ", ocpi " + strconv.Itoa(e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected
}

// Delivered reports whether err proves or leaves open that the counterpart
// received the request.
func Delivered(err error) bool {
	return err != nil && !errors.Is(err, ErrNotDelivered)
}

// Unusable reports whether the counterpart may have acted on the request
// while its answer could not be read.
func Unusable(err error) bool {
	return errors.Is(err, ErrNoResponse)
}

func retryable(err error, idempotent bool) bool {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return false
	}
	if errors.Is(err, ErrNotDelivered) {
		return true
	}
	if !idempotent {
		return false
	}
	if errors.Is(err, ErrNoResponse) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.HTTPStatus >= http.StatusInternalServerError
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotDelivered):
		return "not_delivered"
	case errors.Is(err, ErrNoResponse):
		return "no_response"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}

func malformed(what string, err error) error {
	return dErrors.Wrap(fmt.Errorf("%w: %w", ErrNoResponse, err), dErrors.CodeUpstream, "malformed "+what+" response")
}
