// Package client wraps the Okto REST backend. Every endpoint wrapper returns
// a Result; flows built on top of them (authentication, transfers, the
// dashboard) live in this package as well.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blndgs/okto"
)

const maxResponseSize = 8 << 20

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient. Timeouts, if any, belong here
// or on the request context.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRateLimit throttles outgoing requests. Waiting is bounded by the
// request context.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = okto.DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Result is the outcome of one backend call: either OK with Data, or a
// failure described by Err. Exactly one of the two is meaningful.
type Result[T any] struct {
	OK   bool
	Data T
	Err  *okto.Error
}

// Unwrap converts the result into Go's (value, error) convention.
func (r Result[T]) Unwrap() (T, error) {
	if !r.OK {
		if r.Err == nil {
			return r.Data, &okto.Error{Kind: okto.KindNetwork, Message: "no response"}
		}
		return r.Data, r.Err
	}
	return r.Data, nil
}

func success[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

func failure[T any](err *okto.Error) Result[T] {
	return Result[T]{Err: err}
}

// mapResult transforms the payload of a successful result.
func mapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if !r.OK {
		return failure[U](r.Err)
	}
	return success(f(r.Data))
}

// envelope is the wire shape shared by every backend response.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Details any    `json:"details"`
	TraceID string `json:"traceId"`
}

// endpoint describes how one backend route reports failures.
type endpoint struct {
	method string
	path   string
	// kind is used for failures the backend reports itself; transport
	// failures are always NetworkError.
	kind okto.ErrorKind
	// fallback is the message used when the backend gives none.
	fallback string
	// detailsFirst prefers error.details over error.message.
	detailsFirst bool
}

func (e endpoint) String() string {
	return e.method + " " + e.path
}

func call[T any](ctx context.Context, c *Client, ep endpoint, token string, body any) Result[T] {
	log := c.logger.With(zap.String("endpoint", ep.String()))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failure[T](networkError(ep, err))
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return failure[T](&okto.Error{Kind: okto.KindEncoding, Message: fmt.Sprintf("failed to encode %s request: %v", ep, err), Err: err})
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, ep.method, c.baseURL+ep.path, reader)
	if err != nil {
		return failure[T](networkError(ep, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log.Debug("sending request")
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", zap.Error(err))
		return failure[T](networkError(ep, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		log.Warn("failed to read response body", zap.Error(err))
		return failure[T](networkError(ep, err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("response is not a JSON envelope", zap.Int("status", resp.StatusCode))
		return failure[T](&okto.Error{
			Kind:    okto.KindNetwork,
			Message: fmt.Sprintf("%s: unexpected response (HTTP %d)", ep, resp.StatusCode),
			Code:    resp.StatusCode,
			Err:     err,
		})
	}

	if env.Status != "success" || resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := env.toError(ep, resp.StatusCode)
		log.Info("backend reported failure",
			zap.String("kind", string(e.Kind)),
			zap.Int("code", e.Code),
			zap.String("message", e.Message))
		return failure[T](e)
	}

	var data T
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Warn("failed to decode response data", zap.Error(err))
			return failure[T](&okto.Error{
				Kind:    okto.KindNetwork,
				Message: fmt.Sprintf("%s: malformed response data: %v", ep, err),
				Code:    resp.StatusCode,
				Err:     err,
			})
		}
	}
	log.Debug("request succeeded")
	return success(data)
}

// toError builds the failure for a non-success envelope. Backend messages
// are kept verbatim.
func (env *envelope) toError(ep endpoint, httpStatus int) *okto.Error {
	kind := ep.kind
	if kind == "" {
		kind = okto.KindNetwork
	}
	e := &okto.Error{Kind: kind, Code: httpStatus}

	var message, details string
	if env.Error != nil {
		message = env.Error.Message
		if env.Error.Code != 0 {
			e.Code = env.Error.Code
		}
		e.Details = env.Error.Details
		if s, ok := env.Error.Details.(string); ok {
			details = s
		}
	}
	if env.Code != 0 && (env.Error == nil || env.Error.Code == 0) {
		e.Code = env.Code
	}

	candidates := []string{message, env.Message}
	if ep.detailsFirst {
		candidates = append([]string{details}, candidates...)
	}
	for _, m := range candidates {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = ep.fallback
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("%s failed (HTTP %d)", ep, httpStatus)
	}
	return e
}

func networkError(ep endpoint, err error) *okto.Error {
	return &okto.Error{
		Kind:    okto.KindNetwork,
		Message: fmt.Sprintf("%s: %v", ep, err),
		Err:     err,
	}
}
