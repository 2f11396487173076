// Package openrouter integrates OpenRouter through its PKCE key exchange:
// the user authorizes in a browser, the callback code is traded for an API
// key, and the key itself is the stored session. Credits stand in for a
// user profile.
package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/omnikey-app/omnikey/client"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/providers"
)

const (
	ProviderID = "openrouter"

	siteBase   = "https://openrouter.ai"
	apiBaseURL = "https://openrouter.ai/api/v1"
)

// Session holds the exchanged key. Absence means logged out.
type Session struct {
	Key    string `json:"key"`
	UserID string `json:"userId"`
}

type Provider struct {
	sessions *client.SessionStore
	proxy    *client.ProxyClient

	// verifier lives only between LoginURL and ExchangeCode; the exchange
	// consumes it
	verifierMu sync.Mutex
	verifier   string
}

var (
	_ providers.Provider        = (*Provider)(nil)
	_ providers.WebsitePayments = (*Provider)(nil)
)

func New(sessions *client.SessionStore, proxy *client.ProxyClient) *Provider {
	return &Provider{sessions: sessions, proxy: proxy}
}

func (p *Provider) ID() string       { return ProviderID }
func (p *Provider) Name() string     { return "OpenRouter" }
func (p *Provider) Homepage() string { return siteBase + "/" }
func (p *Provider) Logo() string     { return siteBase + "/favicon.ico" }
func (p *Provider) BaseURL() string  { return apiBaseURL }

// LoginURL starts a PKCE exchange: a fresh verifier is generated and its
// S256 challenge embedded in the authorization URL the user opens.
func (p *Provider) LoginURL(callbackURL string) string {
	verifier := oauth2.GenerateVerifier()

	p.verifierMu.Lock()
	p.verifier = verifier
	p.verifierMu.Unlock()

	query := url.Values{
		"callback_url":          {callbackURL},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}
	return siteBase + "/auth?" + query.Encode()
}

// ExchangeCode trades the callback code plus the pending verifier for an
// API key and stores it as the session.
func (p *Provider) ExchangeCode(ctx context.Context, code string) error {
	p.verifierMu.Lock()
	verifier := p.verifier
	p.verifier = ""
	p.verifierMu.Unlock()
	if verifier == "" {
		return errors.New("[Provider.ExchangeCode] no pending login")
	}

	payload, _ := json.Marshal(map[string]string{
		"code":                  code,
		"code_verifier":         verifier,
		"code_challenge_method": "S256",
	})
	result, err := p.proxy.Proxy(ctx, apiBaseURL+"/auth/keys",
		client.ProxyWithMethod(http.MethodPost),
		client.ProxyWithBody(string(payload)))
	if err != nil {
		return err
	}
	if !result.OK {
		return errors.Errorf("[Provider.ExchangeCode] vendor status %d", result.Status)
	}

	var body struct {
		Key    string `json:"key"`
		UserID string `json:"user_id"`
	}
	if err := result.JSON(&body); err != nil {
		return errors.Wrap(err, "[Provider.ExchangeCode] decode response")
	}
	if body.Key == "" {
		return errors.New("[Provider.ExchangeCode] no key in response")
	}

	return p.sessions.Put(ctx, ProviderID, Session{Key: body.Key, UserID: body.UserID})
}

// RefreshUser reports the account's credit balance as the profile. Any
// failure degrades to logged-out.
func (p *Provider) RefreshUser(ctx context.Context) providers.UserState {
	var s Session
	found, err := p.sessions.Get(ctx, ProviderID, &s)
	if err != nil || !found {
		return providers.LoggedOut()
	}

	result, err := p.proxy.Proxy(ctx, apiBaseURL+"/credits",
		client.ProxyWithHeader("Authorization", "Bearer "+s.Key))
	if err != nil || !result.OK {
		return providers.LoggedOut()
	}

	var body struct {
		Data struct {
			TotalCredits float64 `json:"total_credits"`
			TotalUsage   float64 `json:"total_usage"`
		} `json:"data"`
	}
	if err := result.JSON(&body); err != nil {
		return providers.LoggedOut()
	}

	return providers.LoggedIn(providers.Profile{
		Name:    s.UserID,
		Balance: fmt.Sprintf("%.2f", body.Data.TotalCredits-body.Data.TotalUsage),
	})
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.sessions.Delete(ctx, ProviderID)
}

// CreateKey wraps the exchanged key as a broker credential.
func (p *Provider) CreateKey(ctx context.Context) (keys.APIKey, error) {
	var s Session
	found, err := p.sessions.Get(ctx, ProviderID, &s)
	if err != nil {
		return keys.APIKey{}, err
	}
	if !found {
		return keys.APIKey{}, providers.ErrNoSession
	}

	return keys.APIKey{
		ID:       keys.NewID(),
		Name:     "OpenRouter",
		Type:     ProviderID,
		Protocol: "openai",
		BaseURL:  apiBaseURL,
		Token:    s.Key,
	}, nil
}

// PaymentURL sends the user to OpenRouter's own billing page; there is no
// QR flow.
func (p *Provider) PaymentURL() string {
	return siteBase + "/settings/credits"
}
