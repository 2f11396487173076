package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultRevalidateInterval = 3 * time.Second

// Response is the broker's answer to a transport call, body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Identity is the logged-in broker user as seen by this process. The
// transport is its single writer: set on login, cleared on the first 401.
type Identity struct {
	Username string
	Token    string
}

// Transport issues calls against the located broker. The first call gates
// on discovery; a 401 clears the identity so later calls go out anonymous;
// any network-level failure invalidates the locator before the error is
// returned, so the next call rediscovers instead of hammering a dead port.
type Transport struct {
	locator *Locator
	httpDo  func(*http.Request) (*http.Response, error)

	identityMu sync.Mutex
	identity   Identity

	stopRevalidate chan struct{}
	closeOnce      sync.Once
}

type TransportOption func(*Transport)

// WithTransportHTTPDo replaces the outbound HTTP client (primarily for
// testing).
func WithTransportHTTPDo(do func(*http.Request) (*http.Response, error)) TransportOption {
	return func(t *Transport) {
		t.httpDo = do
	}
}

// NewTransport wires a transport over the locator and starts the background
// revalidator, which re-runs discovery on a fixed interval so a broker
// restarted on another port is noticed without a failed call first. Call
// Close to stop it.
func NewTransport(locator *Locator, options ...TransportOption) *Transport {
	client := &http.Client{}
	t := &Transport{
		locator:        locator,
		httpDo:         client.Do,
		stopRevalidate: make(chan struct{}),
	}
	for _, opt := range options {
		opt(t)
	}
	go t.revalidateLoop(defaultRevalidateInterval)
	return t
}

// Close stops the background revalidator. Idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.stopRevalidate)
	})
}

// SetIdentity records the logged-in user after a successful login.
func (t *Transport) SetIdentity(identity Identity) {
	t.identityMu.Lock()
	defer t.identityMu.Unlock()
	t.identity = identity
}

// Identity returns the current identity; zero value means anonymous.
func (t *Transport) Identity() Identity {
	t.identityMu.Lock()
	defer t.identityMu.Unlock()
	return t.identity
}

func (t *Transport) clearIdentity() {
	t.identityMu.Lock()
	defer t.identityMu.Unlock()
	t.identity = Identity{}
}

type RequestOption func(*http.Request)

// WithHeader sets a header on the outgoing request.
func WithHeader(name, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

// Do issues METHOD {endpoint}{path} with the bearer token attached iff one
// is set. The returned Response is complete even for non-2xx statuses; only
// discovery and network-level failures are errors.
func (t *Transport) Do(ctx context.Context, method, path string, body []byte, options ...RequestOption) (*Response, error) {
	endpoint, err := t.locator.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Transport.Do] %w: %w", ErrServiceUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("[Transport.Do] build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := t.Identity().Token; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range options {
		opt(req)
	}

	resp, err := t.httpDo(req)
	if err != nil {
		t.locator.Invalidate()
		return nil, fmt.Errorf("[Transport.Do] %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.locator.Invalidate()
		return nil, fmt.Errorf("[Transport.Do] read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		t.clearIdentity()
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}

func (t *Transport) revalidateLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_ = t.locator.Revalidate(ctx)
			cancel()
		case <-t.stopRevalidate:
			return
		}
	}
}
