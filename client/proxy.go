package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const proxyPath = "/proxy"

// proxyEnvelope mirrors the broker's /proxy request body.
type proxyEnvelope struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type proxyReply struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// ProxyResult is the outcome of a successful relay. OK reflects the inner
// upstream status only; a vendor 404 is a result, not an error.
type ProxyResult struct {
	OK      bool
	Status  int
	Headers map[string]string
	body    []byte
}

// JSON unmarshals the inner body into v.
func (r *ProxyResult) JSON(v any) error {
	return errors.Wrap(json.Unmarshal(r.body, v), "[ProxyResult.JSON] unmarshal body")
}

// Text returns the inner body as a string.
func (r *ProxyResult) Text() string {
	return string(r.body)
}

type proxyOptions struct {
	method  string
	headers map[string]string
	body    string
}

type ProxyOption func(*proxyOptions)

func ProxyWithMethod(method string) ProxyOption {
	return func(o *proxyOptions) {
		o.method = method
	}
}

func ProxyWithHeader(name, value string) ProxyOption {
	return func(o *proxyOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[name] = value
	}
}

func ProxyWithBody(body string) ProxyOption {
	return func(o *proxyOptions) {
		o.body = body
	}
}

// ProxyClient forwards arbitrary HTTP requests through the broker, which
// performs the real call with its own network identity. Provider adapters
// never talk to a vendor directly.
type ProxyClient struct {
	transport *Transport
}

func NewProxyClient(transport *Transport) *ProxyClient {
	return &ProxyClient{transport: transport}
}

// Proxy relays one request. A broker-level non-2xx is ErrProxyRelay — the
// relay itself failed. A 2xx carries the upstream outcome, whatever its
// inner status; the two failure classes are never conflated.
func (c *ProxyClient) Proxy(ctx context.Context, url string, options ...ProxyOption) (*ProxyResult, error) {
	opts := proxyOptions{method: http.MethodGet}
	for _, opt := range options {
		opt(&opts)
	}

	payload, err := json.Marshal(proxyEnvelope{
		Method:  opts.method,
		URL:     url,
		Headers: opts.headers,
		Body:    opts.body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[ProxyClient.Proxy] marshal envelope")
	}

	resp, err := c.transport.Do(ctx, http.MethodPost, proxyPath, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("[ProxyClient.Proxy] %w: broker status %d: %s", ErrProxyRelay, resp.Status, string(resp.Body))
	}

	var reply proxyReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, errors.Wrap(err, "[ProxyClient.Proxy] decode relay response")
	}

	return &ProxyResult{
		OK:      reply.Status >= 200 && reply.Status < 300,
		Status:  reply.Status,
		Headers: reply.Headers,
		body:    []byte(reply.Body),
	}, nil
}
