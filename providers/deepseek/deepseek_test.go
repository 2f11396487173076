package deepseek_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnikey-app/omnikey/client"
	"github.com/omnikey-app/omnikey/providers"
	"github.com/omnikey-app/omnikey/providers/deepseek"
)

// fakeBroker emulates the broker's /store and /proxy surface in memory so
// the adapter exercises the real SDK stack. Platform calls are dispatched
// to the platform func by destination URL.
type fakeBroker struct {
	sessions map[string]string
	platform func(method, url string, headers map[string]string, body string) (int, string)
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
		status, body := b.platform(envelope.Method, envelope.URL, envelope.Headers, envelope.Body)
		reply, _ := json.Marshal(map[string]any{"status": status, "headers": map[string]string{}, "body": body})
		return respond(http.StatusOK, string(reply))
	}
	return respond(http.StatusNotFound, `{"error":"unknown path"}`)
}

func newProvider(t *testing.T, broker *fakeBroker) *deepseek.Provider {
	t.Helper()
	locator := client.NewLocator(client.WithPort(client.DefaultBasePort))
	transport := client.NewTransport(locator, client.WithTransportHTTPDo(broker.do))
	t.Cleanup(transport.Close)
	return deepseek.New(client.NewSessionStore(transport), client.NewProxyClient(transport))
}

func storedSession() string {
	return `{"token":"ds-bearer"}`
}

func TestRefreshUserWithoutSessionIsLoggedOut(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	provider := newProvider(t, broker)

	state := provider.RefreshUser(context.Background())
	require.Equal(t, providers.StateLoggedOut, state.Kind)
}

func TestRefreshUserReadsProfile(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"deepseek": storedSession()},
		platform: func(method, target string, headers map[string]string, body string) (int, string) {
			require.Equal(t, "Bearer ds-bearer", headers["Authorization"])
			require.Contains(t, target, "/users/current")
			return http.StatusOK, `{"data":{"email":"a@b.c","mobile_number":"138"}}`
		},
	}
	provider := newProvider(t, broker)

	state := provider.RefreshUser(context.Background())
	require.Equal(t, providers.StateLoggedIn, state.Kind)
	require.Equal(t, "a@b.c", state.Profile.Name)
	require.Equal(t, "138", state.Profile.Phone)
}

func TestLoginWithSMSStoresSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	broker.platform = func(method, target string, headers map[string]string, body string) (int, string) {
		switch {
		case strings.Contains(target, "/login_by_mobile_sms"):
			require.Equal(t, http.MethodPost, method)
			require.Equal(t, "application/x-www-form-urlencoded", headers["Content-Type"])
			form, err := url.ParseQuery(body)
			require.NoError(t, err)
			require.Equal(t, "138", form.Get("mobile_number"))
			require.Equal(t, "9999", form.Get("sms_code"))
			return http.StatusOK, `{"data":{"token":"ds-bearer"}}`
		}
		return http.StatusNotFound, `{}`
	}
	provider := newProvider(t, broker)

	require.NoError(t, provider.LoginWithSMS(context.Background(), "138", "9999"))

	var session deepseek.Session
	require.NoError(t, json.Unmarshal([]byte(broker.sessions["deepseek"]), &session))
	require.Equal(t, "ds-bearer", session.Token)
}

func TestLoginWithSMSRejectsBadCode(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	broker.platform = func(method, target string, headers map[string]string, body string) (int, string) {
		return http.StatusUnauthorized, `{}`
	}
	provider := newProvider(t, broker)

	err := provider.LoginWithSMS(context.Background(), "138", "0000")
	require.ErrorIs(t, err, deepseek.ErrInvalidCode)
}

func TestCreateKeyWrapsSensitiveID(t *testing.T) {
	broker := &fakeBroker{
		sessions: map[string]string{"deepseek": storedSession()},
		platform: func(method, target string, headers map[string]string, body string) (int, string) {
			require.Contains(t, target, "/edit_api_keys")
			require.Equal(t, "Bearer ds-bearer", headers["Authorization"])
			return http.StatusOK, `{"data":{"api_key":{"sensitive_id":"sk-ds-1"}}}`
		},
	}
	provider := newProvider(t, broker)

	key, err := provider.CreateKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-ds-1", key.Token)
	require.Equal(t, "deepseek", key.Type)
	require.Equal(t, "openai", key.Protocol)
	require.Equal(t, "https://api.deepseek.com", key.BaseURL)
	require.NotEmpty(t, key.ID)
}

func TestCreateKeyWithoutSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{}}
	provider := newProvider(t, broker)

	_, err := provider.CreateKey(context.Background())
	require.ErrorIs(t, err, providers.ErrNoSession)
}

func TestLogoutDeletesSession(t *testing.T) {
	broker := &fakeBroker{sessions: map[string]string{"deepseek": storedSession()}}
	provider := newProvider(t, broker)

	require.NoError(t, provider.Logout(context.Background()))
	require.Empty(t, broker.sessions)
}

func TestPaymentLifecycle(t *testing.T) {
	captures := 0
	broker := &fakeBroker{
		sessions: map[string]string{"deepseek": storedSession()},
		platform: func(method, target string, headers map[string]string, body string) (int, string) {
			switch {
			case strings.HasSuffix(target, "/api/v1/payments"):
				require.JSONEq(t, `{"payment_method":"wxpay","amount":"50"}`, body)
				return http.StatusOK, `{"data":{"payment_id":"p1","qr_code_url":"weixin://pay/p1"}}`
			case strings.HasSuffix(target, "/payments/p1/capture"):
				captures++
				if captures < 2 {
					return http.StatusOK, `{"data":{"status":"pending"}}`
				}
				return http.StatusOK, `{"data":{"status":"succeeded"}}`
			}
			return http.StatusNotFound, `{}`
		},
	}
	provider := newProvider(t, broker)
	ctx := context.Background()

	order, err := provider.CreatePayment(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, "p1", order.OrderID)
	require.Equal(t, "weixin://pay/p1", order.QRCodeURL)

	status, err := provider.CheckPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, providers.PaymentWait, status)

	status, err = provider.CheckPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, providers.PaymentSuccess, status)
}
