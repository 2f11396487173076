package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnikey-app/omnikey/client"
)

var errConnRefused = errors.New("connection refused")

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// brokerAt answers the discovery probe on one port only; every other port
// refuses the connection.
func brokerAt(port string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		if req.URL.Port() != port {
			return nil, &net.OpError{Op: "dial", Err: errConnRefused}
		}
		return jsonResponse(http.StatusOK, `{"__omnikey":true,"version":"dev"}`), nil
	}
}

func newPinnedTransport(t *testing.T, do func(*http.Request) (*http.Response, error)) *client.Transport {
	t.Helper()
	locator := client.NewLocator(client.WithPort(client.DefaultBasePort))
	transport := client.NewTransport(locator, client.WithTransportHTTPDo(do))
	t.Cleanup(transport.Close)
	return transport
}

func TestLocatorFindsTheOneRespondingPort(t *testing.T) {
	locator := client.NewLocator(client.WithLocatorHTTPDo(brokerAt("18323")))

	endpoint, err := locator.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 18323, endpoint.Port)
	require.Equal(t, "http://localhost:18323", endpoint.BaseURL())
}

func TestLocatorIgnoresNonBrokerResponders(t *testing.T) {
	locator := client.NewLocator(client.WithLocatorHTTPDo(func(req *http.Request) (*http.Response, error) {
		if req.URL.Port() == "18321" {
			return jsonResponse(http.StatusOK, `{"hello":"world"}`), nil
		}
		if req.URL.Port() == "18325" {
			return jsonResponse(http.StatusOK, `{"__omnikey":true}`), nil
		}
		return nil, &net.OpError{Op: "dial", Err: errConnRefused}
	}))

	endpoint, err := locator.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 18325, endpoint.Port)
}

func TestLocatorExhaustedRangeReturnsNotFound(t *testing.T) {
	locator := client.NewLocator(client.WithLocatorHTTPDo(func(*http.Request) (*http.Response, error) {
		return nil, &net.OpError{Op: "dial", Err: errConnRefused}
	}))

	_, err := locator.Locate(context.Background())
	require.ErrorIs(t, err, client.ErrServiceNotFound)
}

func TestLocatorMemoizesUntilInvalidated(t *testing.T) {
	var probes atomic.Int32
	locator := client.NewLocator(client.WithLocatorHTTPDo(func(req *http.Request) (*http.Response, error) {
		probes.Add(1)
		return brokerAt("18320")(req)
	}))

	_, err := locator.Locate(context.Background())
	require.NoError(t, err)
	first := probes.Load()

	_, err = locator.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, probes.Load())

	locator.Invalidate()
	_, err = locator.Locate(context.Background())
	require.NoError(t, err)
	require.Greater(t, probes.Load(), first)
}

func TestLocatorPinnedPortBypassesScanButIsRangeChecked(t *testing.T) {
	locator := client.NewLocator(client.WithPort(18324))
	endpoint, err := locator.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 18324, endpoint.Port)

	locator = client.NewLocator(client.WithPort(99))
	_, err = locator.Locate(context.Background())
	require.ErrorIs(t, err, client.ErrInvalidPort)
}

func TestTransportAttachesBearerIffTokenSet(t *testing.T) {
	var seen []string
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.Header.Get("Authorization"))
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	_, err := transport.Do(context.Background(), http.MethodGet, "/app/list", nil)
	require.NoError(t, err)

	transport.SetIdentity(client.Identity{Username: "admin", Token: "tok-1"})
	_, err = transport.Do(context.Background(), http.MethodGet, "/app/list", nil)
	require.NoError(t, err)

	require.Equal(t, []string{"", "Bearer tok-1"}, seen)
}

func TestTransport401ClearsIdentityIdempotently(t *testing.T) {
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":"expired"}`), nil
	})
	transport.SetIdentity(client.Identity{Username: "admin", Token: "tok-1"})

	for i := 0; i < 3; i++ {
		resp, err := transport.Do(context.Background(), http.MethodGet, "/keys/list", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.Status)
		require.Empty(t, transport.Identity().Token)
	}
}

func TestTransportFailureInvalidatesLocator(t *testing.T) {
	var probes atomic.Int32
	locator := client.NewLocator(client.WithLocatorHTTPDo(func(req *http.Request) (*http.Response, error) {
		probes.Add(1)
		return brokerAt("18320")(req)
	}))
	transport := client.NewTransport(locator, client.WithTransportHTTPDo(func(*http.Request) (*http.Response, error) {
		return nil, &net.OpError{Op: "dial", Err: errConnRefused}
	}))
	t.Cleanup(transport.Close)

	_, err := transport.Do(context.Background(), http.MethodGet, "/app/list", nil)
	require.Error(t, err)

	// the failed call dropped the memoized endpoint; the next call rescans
	before := probes.Load()
	_, _ = transport.Do(context.Background(), http.MethodGet, "/app/list", nil)
	require.Greater(t, probes.Load(), before)
}

func TestTransportWithoutBrokerIsServiceUnavailable(t *testing.T) {
	locator := client.NewLocator(client.WithLocatorHTTPDo(func(*http.Request) (*http.Response, error) {
		return nil, &net.OpError{Op: "dial", Err: errConnRefused}
	}))
	transport := client.NewTransport(locator, client.WithTransportHTTPDo(func(*http.Request) (*http.Response, error) {
		t.Fatal("no network call expected without an endpoint")
		return nil, nil
	}))
	t.Cleanup(transport.Close)

	_, err := transport.Do(context.Background(), http.MethodGet, "/app/list", nil)
	require.ErrorIs(t, err, client.ErrServiceUnavailable)
	require.ErrorIs(t, err, client.ErrServiceNotFound)
}

func TestProxyDistinguishesRelayFailureFromUpstreamRejection(t *testing.T) {
	brokerStatus := http.StatusOK
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		if brokerStatus != http.StatusOK {
			return jsonResponse(brokerStatus, `{"error":"relay failed"}`), nil
		}
		body := fmt.Sprintf(`{"status":%d,"headers":{},"body":"{\"detail\":\"missing\"}"}`, http.StatusNotFound)
		return jsonResponse(http.StatusOK, body), nil
	})
	proxy := client.NewProxyClient(transport)

	result, err := proxy.Proxy(context.Background(), "https://api.example.com/v1/thing")
	require.NoError(t, err)
	require.False(t, result.OK)
	require.Equal(t, http.StatusNotFound, result.Status)

	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, result.JSON(&body))
	require.Equal(t, "missing", body.Detail)

	brokerStatus = http.StatusInternalServerError
	_, err = proxy.Proxy(context.Background(), "https://api.example.com/v1/thing")
	require.ErrorIs(t, err, client.ErrProxyRelay)
}

func TestProxySendsEnvelope(t *testing.T) {
	var captured []byte
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		captured, _ = io.ReadAll(req.Body)
		require.Equal(t, "/proxy", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"status":200,"headers":{},"body":"ok"}`), nil
	})
	proxy := client.NewProxyClient(transport)

	result, err := proxy.Proxy(context.Background(), "https://api.example.com/login",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithHeader("Cookie", "session=abc"),
		client.ProxyWithBody(`{"phone":"123"}`))
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, "ok", result.Text())

	require.JSONEq(t, `{
		"method": "POST",
		"url": "https://api.example.com/login",
		"headers": {"Cookie": "session=abc"},
		"body": "{\"phone\":\"123\"}"
	}`, string(captured))
}

type fakeSession struct {
	Cookie    string `json:"cookie"`
	SubjectID string `json:"subjectId"`
}

func TestSessionStoreRoundTrip(t *testing.T) {
	stored := map[string]string{}
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		key := strings.TrimPrefix(req.URL.Path, "/store/provider_sessions/")
		switch req.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(req.Body)
			stored[key] = string(body)
			return jsonResponse(http.StatusOK, `{"message":"Saved"}`), nil
		case http.MethodGet:
			if v, ok := stored[key]; ok {
				return jsonResponse(http.StatusOK, v), nil
			}
			return jsonResponse(http.StatusNotFound, `{"error":"Not found"}`), nil
		case http.MethodDelete:
			delete(stored, key)
			return jsonResponse(http.StatusOK, `{"message":"Deleted"}`), nil
		}
		return jsonResponse(http.StatusMethodNotAllowed, `{}`), nil
	})
	sessions := client.NewSessionStore(transport)
	ctx := context.Background()

	var out fakeSession
	found, err := sessions.Get(ctx, "siliconflow", &out)
	require.NoError(t, err)
	require.False(t, found)

	in := fakeSession{Cookie: "c=1", SubjectID: "42"}
	require.NoError(t, sessions.Put(ctx, "siliconflow", in))

	found, err = sessions.Get(ctx, "siliconflow", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in, out)

	require.NoError(t, sessions.Delete(ctx, "siliconflow"))
	found, err = sessions.Get(ctx, "siliconflow", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRegisterOutcomes(t *testing.T) {
	status := http.StatusOK
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/app/register", req.URL.Path)
		if status == http.StatusOK {
			return jsonResponse(http.StatusOK, `{"token":"cap-token-1"}`), nil
		}
		return jsonResponse(status, `{"error":"App registration denied"}`), nil
	})

	result, err := client.Register(context.Background(), transport, client.Registration{
		Name: "editor", Description: "a code editor",
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.Equal(t, "cap-token-1", result.APIKey)
	require.Equal(t, "http://localhost:18320/openai", result.BaseURL)

	status = http.StatusForbidden
	result, err = client.Register(context.Background(), transport, client.Registration{
		Name: "editor", Description: "a code editor",
	})
	require.NoError(t, err)
	require.False(t, result.Granted)

	status = http.StatusInternalServerError
	_, err = client.Register(context.Background(), transport, client.Registration{
		Name: "editor", Description: "a code editor",
	})
	require.Error(t, err)
}

func TestLoginSetsIdentity(t *testing.T) {
	transport := newPinnedTransport(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status":"success","username":"admin","token":"tok-9"}`), nil
	})

	result, err := client.Login(context.Background(), transport, "admin", "pw")
	require.NoError(t, err)
	require.Equal(t, client.LoginStatusSuccess, result.Status)
	require.Equal(t, "tok-9", transport.Identity().Token)
}
