package siliconflow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnikey-app/omnikey/client"
	"github.com/omnikey-app/omnikey/providers"
	"github.com/omnikey-app/omnikey/providers/siliconflow"
)

// fakeBroker emulates the broker's /store and /proxy surface in memory so
// the adapter exercises the real SDK stack. Vendor calls are dispatched to
// the vendor func by destination URL.
type fakeBroker struct {
	sessions map[string]string
	vendor   func(method, url string, headers map[string]string, body string) (int, map[string]string, string)
}

func (b *fakeBroker) do(req *http.Request) (*http.Response, error) {
	respond := func(status int, body string) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}

	switch {
	case strings.HasPrefix(req.URL.Path, "/store/provider_sessions/"):
		key := strings.TrimPrefix(req.URL.Path, "/store/provider_sessions/")
		switch req.Method {
		case http.MethodGet:
			if v, ok := b.sessions[key]; ok {
				return respond(http.StatusOK, v)
			}
			return respond(http.StatusNotFound, `{"error":"Not found"}`)
		case http.MethodPut, http.MethodPost:
			body, _ := io.ReadAll(req.Body)
			b.sessions[key] = string(body)
			return respond(http.StatusOK, `{"message":"Saved"}`)
		case http.MethodDelete:
			delete(b.sessions, key)
			return respond(http.StatusOK, `{"message":"Deleted"}`)
		}
	case req.URL.Path == "/proxy":
		var envelope struct {
			Method  string            `json:"method"`
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
			Body    string            `json:"body"`
		}
		payload, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return respond(http.StatusBadRequest, `{"error":"bad envelope"}`)
		}
		status, headers, body := b.vendor(envelope.Method, envelope.URL, envelope.Headers, envelope.Body)
		reply, _ := json.Marshal(map[string]any{"status": status, "headers": headers, "body": body})
		return respond(http.StatusOK, string(reply))
	}
	return respond(http.StatusNotFound, `{"error":"unknown path"}`)
}

func newProvider(t *testing.T, broker *fakeBroker) *siliconflow.Provider {
	t.Helper()
	locator := client.NewLocator(client.WithPort(client.DefaultBasePort))
	transport := client.NewTransport(locator, client.WithTransportHTTPDo(broker.do))
	t.Cleanup(transport.Close)
	return siliconflow.New(client.NewSessionStore(transport), client.NewProxyClient(transport))
}

func vendorEnvelope(data string) string {
	return fmt.Sprintf(`{"code":20000,"status":true,"data":%s}`, data)
}

func storedSession() string {
	return `{"cookie":"sf=abc","subjectId":"42"}`
}

func TestRefreshUserWithoutSessionIsLoggedOut(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	provider := newProvider(t, broker)

	state := provider.RefreshUser(context.Background())
	require.Equal(t, providers.StateLoggedOut, state.Kind)
}

func TestRefreshUserReadsProfile(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"siliconflow": storedSession()},
		vendor: func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
			require.Equal(t, "sf=abc", headers["Cookie"])
			require.Equal(t, "42", headers["X-Subject-ID"])
			require.Contains(t, url, "/user/info")
			return http.StatusOK, nil, vendorEnvelope(
				`{"name":"ada","phone":"138","email":"a@b.c","balance":"12.30","auth":1}`)
		},
	}
	provider := newProvider(t, broker)

	state := provider.RefreshUser(context.Background())
	require.Equal(t, providers.StateLoggedIn, state.Kind)
	require.Equal(t, "ada", state.Profile.Name)
	require.Equal(t, "12.30", state.Profile.Balance)
	require.True(t, state.Profile.Verified)
}

func TestRefreshUserDegradesOnVendorRejection(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"siliconflow": storedSession()},
		vendor: func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
			return http.StatusUnauthorized, nil, `{}`
		},
	}
	provider := newProvider(t, broker)

	state := provider.RefreshUser(context.Background())
	require.Equal(t, providers.StateLoggedOut, state.Kind)
}

func TestLoginWithSMSStoresSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	broker.vendor = func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
		switch {
		case strings.Contains(url, "/api/open/login/user"):
			require.Equal(t, http.MethodPost, method)
			require.JSONEq(t, `{"phone":"138","code":"9999"}`, body)
			return http.StatusOK, map[string]string{"Set-Cookie": "sf=abc; Path=/; HttpOnly"}, `{}`
		case strings.HasSuffix(url, "/me"):
			require.Equal(t, "sf=abc; Path=/; HttpOnly", headers["Cookie"])
			return http.StatusOK, map[string]string{"X-Subject-Id": "42"}, ""
		}
		return http.StatusNotFound, nil, `{}`
	}
	provider := newProvider(t, broker)

	require.NoError(t, provider.LoginWithSMS(context.Background(), "138", "9999"))

	var session siliconflow.Session
	require.NoError(t, json.Unmarshal([]byte(broker.sessions["siliconflow"]), &session))
	require.Equal(t, "sf=abc; Path=/; HttpOnly", session.Cookie)
	require.Equal(t, "42", session.SubjectID)
}

func TestLoginWithSMSRejectsBadCode(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	broker.vendor = func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
		return http.StatusUnauthorized, nil, `{}`
	}
	provider := newProvider(t, broker)

	err := provider.LoginWithSMS(context.Background(), "138", "0000")
	require.ErrorIs(t, err, siliconflow.ErrInvalidCode)
}

func TestCreateKeyWrapsSecret(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"siliconflow": storedSession()},
		vendor: func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
			require.Contains(t, url, "/apikey/create")
			return http.StatusOK, nil, vendorEnvelope(`{"secretKey":"sk-sf-1"}`)
		},
	}
	provider := newProvider(t, broker)

	key, err := provider.CreateKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-sf-1", key.Token)
	require.Equal(t, "siliconflow", key.Type)
	require.Equal(t, "openai", key.Protocol)
	require.Equal(t, "https://api.siliconflow.cn/v1", key.BaseURL)
	require.NotEmpty(t, key.ID)
}

func TestCreateKeyWithoutSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	provider := newProvider(t, broker)

	_, err := provider.CreateKey(context.Background())
	require.ErrorIs(t, err, providers.ErrNoSession)
}

func TestLogoutDeletesSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{"siliconflow": storedSession()}}
	provider := newProvider(t, broker)

	require.NoError(t, provider.Logout(context.Background()))
	require.Empty(t, broker.sessions)
}

func TestPaymentLifecycle(t *testing.T) {
	checks := 0
	broker := &fakeBroker{
		sessions: map[string]string{"siliconflow": storedSession()},
		vendor: func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
			switch {
			case strings.Contains(url, "/pay/transactions"):
				require.JSONEq(t, `{"platform":"wx","amount":"50"}`, body)
				return http.StatusOK, nil, vendorEnvelope(`{"order":"o1","codeUrl":"weixin://pay/o1"}`)
			case strings.Contains(url, "/pay/status"):
				checks++
				if checks < 2 {
					return http.StatusOK, nil, vendorEnvelope(`{"payStatus":2}`)
				}
				return http.StatusOK, nil, vendorEnvelope(`{"payStatus":1}`)
			}
			return http.StatusNotFound, nil, `{}`
		},
	}
	provider := newProvider(t, broker)
	ctx := context.Background()

	order, err := provider.CreatePayment(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, "o1", order.OrderID)
	require.Equal(t, "weixin://pay/o1", order.QRCodeURL)

	status, err := provider.CheckPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, providers.PaymentWait, status)

	status, err = provider.CheckPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, providers.PaymentSuccess, status)
}

func TestCheckVerificationMasksIdentity(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"siliconflow": storedSession()},
		vendor: func(method, url string, headers map[string]string, body string) (int, map[string]string, string) {
			require.Contains(t, url, "/subject/auth/info")
			return http.StatusOK, nil, vendorEnvelope(
				`{"auth":true,"username":"张三丰","cardId":"110101199001011234"}`)
		},
	}
	provider := newProvider(t, broker)

	verification, err := provider.CheckVerification(context.Background())
	require.NoError(t, err)
	require.NotNil(t, verification)
	require.Equal(t, "张**", verification.Name)
	require.Equal(t, "110101********1234", verification.CardID)
}
