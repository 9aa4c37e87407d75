// Package client talks to the erqueue HTTP API. Every failure, network or
// non-2xx, wraps ErrPersistence.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/notify/sse"
	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

const defaultTimeout = 10 * time.Second

// ErrPersistence is wrapped by every error returned from a Client.
var ErrPersistence = errors.New("client: request failed")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Unwrap makes StatusError match ErrPersistence.
func (e *StatusError) Unwrap() error { return ErrPersistence }

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client is an erqueue API client.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	token  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for plain requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: defaultTimeout, Transport: transport},
		stream: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoadTriage fetches the saved tree.
func (c *Client) LoadTriage(ctx context.Context) (triage.DTO, error) {
	var w triage.Wire
	if err := c.do(ctx, http.MethodGet, "/triage", nil, nil, &w); err != nil {
		return triage.DTO{}, err
	}
	dto, err := triage.FromWire(w)
	if err != nil {
		return triage.DTO{}, fmt.Errorf("%w: decode tree: %w", ErrPersistence, err)
	}
	return dto, nil
}

// SaveTriage replaces the saved tree.
func (c *Client) SaveTriage(ctx context.Context, dto triage.DTO) error {
	return c.do(ctx, http.MethodPost, "/triage", nil, dto, nil)
}

// DecisionTree fetches one questionnaire screen. An empty stepID is the root.
func (c *Client) DecisionTree(ctx context.Context, stepID string) (*triage.StepView, error) {
	var q url.Values
	if stepID != "" {
		q = url.Values{"nextStepId": {stepID}}
	}
	var view triage.StepView
	if err := c.do(ctx, http.MethodGet, "/triage/decision-tree", q, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListQueue returns the queue in priority order.
func (c *Client) ListQueue(ctx context.Context) ([]queue.Entry, error) {
	entries := []queue.Entry{}
	if err := c.do(ctx, http.MethodGet, "/queue", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendPatient queues a patient and returns its ticket.
func (c *Client) AppendPatient(ctx context.Context, label triage.Label) (queue.Entry, error) {
	var e queue.Entry
	body := map[string]triage.Label{"assignedLabel": label}
	if err := c.do(ctx, http.MethodPost, "/queue/new-patient", nil, body, &e); err != nil {
		return queue.Entry{}, err
	}
	return e, nil
}

// RemovePatient calls a patient out of the queue.
func (c *Client) RemovePatient(ctx context.Context, number int) error {
	return c.do(ctx, http.MethodDelete, "/queue/"+strconv.Itoa(number), nil, nil, nil)
}

// Events subscribes to the live queue. The channel is closed when ctx is
// done or the server ends the stream.
func (c *Client) Events(ctx context.Context) (<-chan notify.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/queue/events", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := checkStatus(req, resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	ch := make(chan notify.Event)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()
		_ = sse.Decode(resp.Body, func(ev notify.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	u := *c.base
	u.Path += path
	u.RawQuery = q.Encode()

	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %w", ErrPersistence, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req) //nolint:gosec // base url is operator config
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrPersistence, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %w", ErrPersistence, method, path, err)
	}
	return nil
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	se := &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		se.Message = eb.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}
