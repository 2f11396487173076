// Package client is the Go SDK for talking to a local OmniKey broker:
// discovery over the fixed port range, an authenticated transport with
// automatic re-discovery, the request-forwarding proxy envelope, provider
// session storage, and app registration.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultBasePort is the first port of the discovery range.
	DefaultBasePort = 18320
	// DefaultPortRangeSize is how many consecutive ports are probed.
	DefaultPortRangeSize = 10

	// discoveryMarker is the JSON field a real broker answers with; anything
	// else listening on a port in the range will not produce it.
	discoveryMarker = "__omnikey"

	defaultProbeTimeout = 500 * time.Millisecond
)

// Endpoint is the broker's current local address. Transient: rebuilt by the
// Locator, never persisted.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// Locator finds the broker by probing the port range in ascending order.
// The result is memoized; Invalidate forces the next Locate to rescan.
type Locator struct {
	basePort     int
	rangeSize    int
	pinnedPort   int
	probeTimeout time.Duration
	httpDo       func(*http.Request) (*http.Response, error)

	mu       sync.Mutex
	endpoint Endpoint
	located  bool
}

type LocatorOption func(*Locator)

// WithBasePort overrides the first port of the scan range.
func WithBasePort(port int) LocatorOption {
	return func(l *Locator) {
		l.basePort = port
	}
}

// WithPortRangeSize overrides the number of ports probed.
func WithPortRangeSize(size int) LocatorOption {
	return func(l *Locator) {
		l.rangeSize = size
	}
}

// WithPort pins the broker port, bypassing the scan. Used when the port
// arrives out of band, e.g. through the omnikey:// launch link. The value
// is still validated against the range on Locate.
func WithPort(port int) LocatorOption {
	return func(l *Locator) {
		l.pinnedPort = port
	}
}

// WithProbeTimeout sets the per-port probe timeout.
func WithProbeTimeout(timeout time.Duration) LocatorOption {
	return func(l *Locator) {
		l.probeTimeout = timeout
	}
}

// WithLocatorHTTPDo replaces the probe HTTP client (primarily for testing).
func WithLocatorHTTPDo(do func(*http.Request) (*http.Response, error)) LocatorOption {
	return func(l *Locator) {
		l.httpDo = do
	}
}

func NewLocator(options ...LocatorOption) *Locator {
	client := &http.Client{}
	l := &Locator{
		basePort:     DefaultBasePort,
		rangeSize:    DefaultPortRangeSize,
		probeTimeout: defaultProbeTimeout,
		httpDo:       client.Do,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Locate returns the broker endpoint, scanning the port range on the first
// call and after Invalidate. A port that refuses the connection, times out,
// or answers without the discovery marker just moves the scan along; only
// exhausting the range is an error.
func (l *Locator) Locate(ctx context.Context) (Endpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.located {
		return l.endpoint, nil
	}

	endpoint, err := l.scan(ctx)
	if err != nil {
		return Endpoint{}, err
	}
	l.endpoint = endpoint
	l.located = true
	return endpoint, nil
}

// Invalidate drops the memoized endpoint so the next Locate rescans. Called
// by the transport on any network-level failure.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.located = false
}

// Revalidate runs a fresh scan and replaces the memoized endpoint, keeping
// the old one if the scan finds nothing mid-restart.
func (l *Locator) Revalidate(ctx context.Context) error {
	endpoint, err := l.scan(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoint = endpoint
	l.located = true
	return nil
}

func (l *Locator) scan(ctx context.Context) (Endpoint, error) {
	if l.pinnedPort != 0 {
		if l.pinnedPort < l.basePort || l.pinnedPort >= l.basePort+l.rangeSize {
			return Endpoint{}, errors.Wrapf(ErrInvalidPort, "[Locator.Locate] port %d", l.pinnedPort)
		}
		return Endpoint{Host: "localhost", Port: l.pinnedPort}, nil
	}

	for port := l.basePort; port < l.basePort+l.rangeSize; port++ {
		if l.probe(ctx, port) {
			return Endpoint{Host: "localhost", Port: port}, nil
		}
		if ctx.Err() != nil {
			return Endpoint{}, ctx.Err()
		}
	}
	return Endpoint{}, ErrServiceNotFound
}

func (l *Locator) probe(ctx context.Context, port int) bool {
	probeCtx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, fmt.Sprintf("http://localhost:%d/", port), nil)
	if err != nil {
		return false
	}
	resp, err := l.httpDo(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	marker, ok := body[discoveryMarker].(bool)
	return ok && marker
}
