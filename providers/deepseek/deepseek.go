// Package deepseek integrates the DeepSeek open platform: SMS login,
// account refresh, WeChat QR top-up, and API key issuance. The session is
// the bearer token the platform hands out at login.
package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/client"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/providers"
)

const (
	ProviderID = "deepseek"

	platformBase = "https://platform.deepseek.com"
	apiBaseURL   = "https://api.deepseek.com"
)

// ErrInvalidCode is returned when the platform rejects the SMS code.
var ErrInvalidCode = errors.New("invalid verification code")

// Session is the opaque payload stored under the provider id. Absence means
// logged out.
type Session struct {
	Token string `json:"token"`
}

type Provider struct {
	sessions *client.SessionStore
	proxy    *client.ProxyClient
}

var (
	_ providers.Provider   = (*Provider)(nil)
	_ providers.QRPayments = (*Provider)(nil)
)

func New(sessions *client.SessionStore, proxy *client.ProxyClient) *Provider {
	return &Provider{sessions: sessions, proxy: proxy}
}

func (p *Provider) ID() string       { return ProviderID }
func (p *Provider) Name() string     { return "DeepSeek" }
func (p *Provider) Homepage() string { return platformBase + "/" }
func (p *Provider) Logo() string     { return platformBase + "/favicon.ico" }
func (p *Provider) BaseURL() string  { return apiBaseURL }

// envelope is the platform's standard response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(result *client.ProxyResult, out any) error {
	var env envelope
	if err := result.JSON(&env); err != nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "[decodeEnvelope] decode data")
}

func (p *Provider) session(ctx context.Context) (Session, error) {
	var s Session
	found, err := p.sessions.Get(ctx, ProviderID, &s)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, providers.ErrNoSession
	}
	return s, nil
}

func (p *Provider) authedOptions(s Session, referer string) []client.ProxyOption {
	return []client.ProxyOption{
		client.ProxyWithHeader("Referer", referer),
		client.ProxyWithHeader("Authorization", "Bearer "+s.Token),
	}
}

// RefreshUser loads the stored session and asks the platform for the
// account profile. Any failure along the way is logged-out, never an error.
func (p *Provider) RefreshUser(ctx context.Context) providers.UserState {
	s, err := p.session(ctx)
	if err != nil {
		return providers.LoggedOut()
	}

	result, err := p.proxy.Proxy(ctx, platformBase+"/auth-api/v0/users/current",
		p.authedOptions(s, platformBase+"/profile")...)
	if err != nil || !result.OK {
		return providers.LoggedOut()
	}

	var data struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Mobile string `json:"mobile_number"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return providers.LoggedOut()
	}

	name := data.Name
	if name == "" {
		name = data.Email
	}
	return providers.LoggedIn(providers.Profile{
		Name:  name,
		Phone: data.Mobile,
		Email: data.Email,
	})
}

// SendSMSCode asks the platform to text a login code to the given phone.
func (p *Provider) SendSMSCode(ctx context.Context, phone string) error {
	payload, _ := json.Marshal(map[string]string{"mobile_number": phone, "area_code": "+86"})
	result, err := p.proxy.Proxy(ctx, platformBase+"/auth-api/v0/users/create_sms_verification_code",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	if err != nil {
		return err
	}
	if !result.OK {
		return errors.Errorf("[Provider.SendSMSCode] platform status %d", result.Status)
	}
	return nil
}

// LoginWithSMS exchanges phone+code for the platform's bearer token and
// persists the session. The login endpoint is form-encoded.
func (p *Provider) LoginWithSMS(ctx context.Context, phone, code string) error {
	form := url.Values{}
	form.Set("mobile_number", phone)
	form.Set("sms_code", code)
	form.Set("area_code", "+86")

	result, err := p.proxy.Proxy(ctx, platformBase+"/auth-api/v0/users/login_by_mobile_sms",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithHeader("Content-Type", "application/x-www-form-urlencoded"),
		client.ProxyWithBody(form.Encode()))
	if err != nil {
		return err
	}
	if result.Status == http.StatusUnauthorized {
		return ErrInvalidCode
	}
	if !result.OK {
		return errors.Errorf("[Provider.LoginWithSMS] platform status %d", result.Status)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return errors.Wrap(err, "[Provider.LoginWithSMS]")
	}
	if data.Token == "" {
		return errors.New("[Provider.LoginWithSMS] no token in login response")
	}

	return p.sessions.Put(ctx, ProviderID, Session{Token: data.Token})
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.sessions.Delete(ctx, ProviderID)
}

// CreateKey issues a fresh API key on the account and wraps it as a broker
// credential.
func (p *Provider) CreateKey(ctx context.Context) (keys.APIKey, error) {
	s, err := p.session(ctx)
	if err != nil {
		return keys.APIKey{}, err
	}

	payload, _ := json.Marshal(map[string]string{"action": "create", "name": "Generated by OmniKey"})
	opts := append(p.authedOptions(s, platformBase+"/api_keys"),
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	result, err := p.proxy.Proxy(ctx, platformBase+"/api/v0/users/edit_api_keys", opts...)
	if err != nil {
		return keys.APIKey{}, err
	}
	if !result.OK {
		return keys.APIKey{}, errors.Errorf("[Provider.CreateKey] platform status %d", result.Status)
	}

	var data struct {
		APIKey struct {
			Token string `json:"sensitive_id"`
		} `json:"api_key"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return keys.APIKey{}, errors.Wrap(err, "[Provider.CreateKey]")
	}

	return keys.APIKey{
		ID:       keys.NewID(),
		Name:     "DeepSeek",
		Type:     ProviderID,
		Protocol: "openai",
		BaseURL:  apiBaseURL,
		Token:    data.APIKey.Token,
	}, nil
}

// CreatePayment opens a WeChat Pay top-up and returns its QR code.
func (p *Provider) CreatePayment(ctx context.Context, amount int) (*providers.PaymentOrder, error) {
	s, err := p.session(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"payment_method": "wxpay",
		"amount":         strconv.Itoa(amount),
	})
	opts := append(p.authedOptions(s, platformBase+"/top_up"),
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	result, err := p.proxy.Proxy(ctx, platformBase+"/api/v1/payments", opts...)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, errors.Errorf("[Provider.CreatePayment] platform status %d", result.Status)
	}

	var data struct {
		PaymentID string `json:"payment_id"`
		QRCodeURL string `json:"qr_code_url"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return nil, errors.Wrap(err, "[Provider.CreatePayment]")
	}

	return &providers.PaymentOrder{
		OrderID:   data.PaymentID,
		QRCodeURL: data.QRCodeURL,
		ExpiresIn: 120,
	}, nil
}

// CheckPayment captures a pending top-up and reports its status.
func (p *Provider) CheckPayment(ctx context.Context, orderID string) (providers.PaymentStatus, error) {
	s, err := p.session(ctx)
	if err != nil {
		return providers.PaymentCanceled, err
	}

	opts := append(p.authedOptions(s, platformBase+"/top_up"),
		client.ProxyWithMethod(http.MethodPost))
	result, err := p.proxy.Proxy(ctx, platformBase+"/api/v1/payments/"+orderID+"/capture", opts...)
	if err != nil {
		return providers.PaymentCanceled, err
	}
	if !result.OK {
		return providers.PaymentCanceled, errors.Errorf("[Provider.CheckPayment] platform status %d", result.Status)
	}

	var data struct {
		Status string `json:"status"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return providers.PaymentCanceled, errors.Wrap(err, "[Provider.CheckPayment]")
	}

	switch data.Status {
	case "succeeded":
		return providers.PaymentSuccess, nil
	case "pending":
		return providers.PaymentWait, nil
	default:
		return providers.PaymentCanceled, nil
	}
}
