// Package siliconflow integrates the SiliconFlow cloud account: SMS login,
// account refresh, real-identity verification, WeChat QR top-up, and API
// key issuance. The session is the account cookie plus the subject id
// header the vendor's APIs expect.
package siliconflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/client"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/providers"
)

const (
	ProviderID = "siliconflow"

	accountBase = "https://account.siliconflow.cn"
	cloudBase   = "https://cloud.siliconflow.cn"
	apiBaseURL  = "https://api.siliconflow.cn/v1"

	// the vendor wraps every API payload in {code, status, data}; 20000 is
	// its success code
	successCode = 20000
)

// ErrInvalidCode is returned when the vendor rejects the SMS code.
var ErrInvalidCode = errors.New("invalid verification code")

// Session is the opaque payload stored under the provider id. Absence means
// logged out.
type Session struct {
	Cookie    string `json:"cookie"`
	SubjectID string `json:"subjectId"`
}

type Provider struct {
	sessions *client.SessionStore
	proxy    *client.ProxyClient
}

var (
	_ providers.Provider   = (*Provider)(nil)
	_ providers.Verifier   = (*Provider)(nil)
	_ providers.QRPayments = (*Provider)(nil)
)

func New(sessions *client.SessionStore, proxy *client.ProxyClient) *Provider {
	return &Provider{sessions: sessions, proxy: proxy}
}

func (p *Provider) ID() string       { return ProviderID }
func (p *Provider) Name() string     { return "SiliconFlow" }
func (p *Provider) Homepage() string { return "https://www.siliconflow.cn/" }
func (p *Provider) Logo() string     { return cloudBase + "/favicon.ico" }
func (p *Provider) BaseURL() string  { return apiBaseURL }

// envelope is the vendor's standard response wrapper.
type envelope struct {
	Code   int             `json:"code"`
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decodeEnvelope(result *client.ProxyResult, out any) error {
	var env envelope
	if err := result.JSON(&env); err != nil {
		return err
	}
	if env.Code != successCode || !env.Status {
		return errors.Errorf("[decodeEnvelope] vendor code %d", env.Code)
	}
	if out == nil {
		return nil
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
		client.ProxyWithHeader("Origin", cloudBase),
		client.ProxyWithHeader("Referer", referer),
		client.ProxyWithHeader("Cookie", s.Cookie),
		client.ProxyWithHeader("X-Subject-ID", s.SubjectID),
	}
}

// RefreshUser loads the stored session and asks the vendor for the account
// profile. Any failure along the way is logged-out, never an error.
func (p *Provider) RefreshUser(ctx context.Context) providers.UserState {
	s, err := p.session(ctx)
	if err != nil {
		return providers.LoggedOut()
	}

	result, err := p.proxy.Proxy(ctx, cloudBase+"/biz-server/api/v1/user/info",
		p.authedOptions(s, cloudBase+"/me/account/info")...)
	if err != nil || !result.OK {
		return providers.LoggedOut()
	}

	var data struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Balance string `json:"balance"`
		Auth    int    `json:"auth"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return providers.LoggedOut()
	}

	return providers.LoggedIn(providers.Profile{
		Name:     data.Name,
		Phone:    data.Phone,
		Email:    data.Email,
		Balance:  data.Balance,
		Verified: data.Auth == 1,
	})
}

// SendSMSCode asks the vendor to text a login code to the given phone.
func (p *Provider) SendSMSCode(ctx context.Context, phone string) error {
	payload, _ := json.Marshal(map[string]string{"phone": phone})
	result, err := p.proxy.Proxy(ctx, accountBase+"/api/open/sms",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithHeader("Origin", cloudBase),
		client.ProxyWithBody(string(payload)))
	if err != nil {
		return err
	}
	if !result.OK {
		return errors.Errorf("[Provider.SendSMSCode] vendor status %d", result.Status)
	}
	return nil
}

// LoginWithSMS exchanges phone+code for a session cookie, resolves the
// subject id the cloud console assigns, and persists the session.
func (p *Provider) LoginWithSMS(ctx context.Context, phone, code string) error {
	payload, _ := json.Marshal(map[string]string{"phone": phone, "code": code})
	result, err := p.proxy.Proxy(ctx, accountBase+"/api/open/login/user",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithHeader("Origin", cloudBase),
		client.ProxyWithBody(string(payload)))
	if err != nil {
		return err
	}
	if result.Status == http.StatusUnauthorized {
		return ErrInvalidCode
	}
	if !result.OK {
		return errors.Errorf("[Provider.LoginWithSMS] vendor status %d", result.Status)
	}

	setCookie := result.Headers["Set-Cookie"]
	if setCookie == "" {
		return errors.New("[Provider.LoginWithSMS] no Set-Cookie in login response")
	}
	cookie := normalizeCookie(setCookie)

	meResult, err := p.proxy.Proxy(ctx, cloudBase+"/me",
		client.ProxyWithHeader("Referer", accountBase+"/"),
		client.ProxyWithHeader("Cookie", cookie))
	if err != nil {
		return err
	}
	subjectID := meResult.Headers["X-Subject-Id"]
	if subjectID == "" {
		subjectID = meResult.Headers["X-Subject-ID"]
	}
	if subjectID == "" {
		return errors.New("[Provider.LoginWithSMS] no subject id in console response")
	}

	return p.sessions.Put(ctx, ProviderID, Session{Cookie: cookie, SubjectID: subjectID})
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

	payload, _ := json.Marshal(map[string]string{"description": "Generated by OmniKey"})
	opts := append(p.authedOptions(s, cloudBase+"/me/account/ak"),
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	result, err := p.proxy.Proxy(ctx, cloudBase+"/biz-server/api/v1/apikey/create", opts...)
	if err != nil {
		return keys.APIKey{}, err
	}
	if !result.OK {
		return keys.APIKey{}, errors.Errorf("[Provider.CreateKey] vendor status %d", result.Status)
	}

	var data struct {
		SecretKey string `json:"secretKey"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return keys.APIKey{}, errors.Wrap(err, "[Provider.CreateKey]")
	}

	return keys.APIKey{
		ID:       keys.NewID(),
		Name:     "SiliconFlow",
		Type:     ProviderID,
		Protocol: "openai",
		BaseURL:  apiBaseURL,
		Token:    data.SecretKey,
	}, nil
}

// CheckVerification returns the masked real-identity record, or nil when
// the account has not completed verification.
func (p *Provider) CheckVerification(ctx context.Context) (*providers.Verification, error) {
	s, err := p.session(ctx)
	if err != nil {
		return nil, err
	}

	result, err := p.proxy.Proxy(ctx, cloudBase+"/biz-server/api/v1/subject/auth/info",
		p.authedOptions(s, cloudBase+"/me/account/authentication/personal")...)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, nil
	}

	var data struct {
		Auth     bool   `json:"auth"`
		Username string `json:"username"`
		CardID   string `json:"cardId"`
	}
	if err := decodeEnvelope(result, &data); err != nil || !data.Auth {
		return nil, nil
	}

	return &providers.Verification{
		Name:   maskName(data.Username),
		CardID: maskCardID(data.CardID),
	}, nil
}

// SubmitVerification files a personal real-identity check and returns the
// vendor URL where the user finishes it.
func (p *Provider) SubmitVerification(ctx context.Context, req providers.VerificationRequest) (string, error) {
	s, err := p.session(ctx)
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]any{
		"username":          strings.TrimSpace(req.Name),
		"cardType":          req.CardType,
		"cardId":            strings.TrimSpace(req.CardID),
		"authType":          0,
		"update":            false,
		"authOperationType": 1,
	})
	opts := append(p.authedOptions(s, cloudBase+"/me/account/authentication/personal"),
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	result, err := p.proxy.Proxy(ctx, cloudBase+"/biz-server/api/v1/subject/auth/save", opts...)
	if err != nil {
		return "", err
	}
	if !result.OK {
		return "", errors.Errorf("[Provider.SubmitVerification] vendor status %d", result.Status)
	}

	var data struct {
		AuthURL string `json:"authUrl"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return "", errors.Wrap(err, "[Provider.SubmitVerification]")
	}
	return data.AuthURL, nil
}

// CreatePayment opens a WeChat Pay top-up and returns its QR code.
func (p *Provider) CreatePayment(ctx context.Context, amount int) (*providers.PaymentOrder, error) {
	s, err := p.session(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"platform": "wx",
		"amount":   strconv.Itoa(amount),
	})
	opts := append(p.authedOptions(s, cloudBase+"/me/account/recharge"),
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	result, err := p.proxy.Proxy(ctx, cloudBase+"/biz-server/api/v1/pay/transactions", opts...)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, errors.Errorf("[Provider.CreatePayment] vendor status %d", result.Status)
	}

	var data struct {
		Order   string `json:"order"`
		CodeURL string `json:"codeUrl"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return nil, errors.Wrap(err, "[Provider.CreatePayment]")
	}

	return &providers.PaymentOrder{
		OrderID:   data.Order,
		QRCodeURL: data.CodeURL,
		ExpiresIn: 120,
	}, nil
}

// CheckPayment reports a pending top-up's status: the vendor's payStatus 1
// is paid, 2 is still waiting.
func (p *Provider) CheckPayment(ctx context.Context, orderID string) (providers.PaymentStatus, error) {
	s, err := p.session(ctx)
	if err != nil {
		return providers.PaymentCanceled, err
	}

	result, err := p.proxy.Proxy(ctx, fmt.Sprintf("%s/biz-server/api/v1/pay/status?order=%s", cloudBase, orderID),
		p.authedOptions(s, cloudBase+"/me/account/recharge")...)
	if err != nil {
		return providers.PaymentCanceled, err
	}
	if !result.OK {
		return providers.PaymentCanceled, errors.Errorf("[Provider.CheckPayment] vendor status %d", result.Status)
	}

	var data struct {
		PayStatus int `json:"payStatus"`
	}
	if err := decodeEnvelope(result, &data); err != nil {
		return providers.PaymentCanceled, errors.Wrap(err, "[Provider.CheckPayment]")
	}

	switch data.PayStatus {
	case 1:
		return providers.PaymentSuccess, nil
	case 2:
		return providers.PaymentWait, nil
	default:
		return providers.PaymentCanceled, nil
	}
}

// normalizeCookie flattens a Set-Cookie header into a Cookie request value.
func normalizeCookie(setCookie string) string {
	parts := strings.Split(setCookie, ";")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, "; ")
}

func maskName(name string) string {
	runes := []rune(name)
	if len(runes) <= 1 {
		return name
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

func maskCardID(cardID string) string {
	if len(cardID) <= 10 {
		return cardID
	}
	return cardID[:6] + strings.Repeat("*", len(cardID)-10) + cardID[len(cardID)-4:]
}
