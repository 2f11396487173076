// Package providers defines the capability interface every upstream vendor
// integration implements, plus a registry keyed by provider id. Adapters
// compose the SDK's SessionStore and ProxyClient: all vendor traffic goes
// through the broker's relay, never direct, so anti-automation headers and
// the broker's network identity stay centralized.
package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/keys"
)

// ErrNoSession is returned by operations that need an authenticated vendor
// session when none is stored.
var ErrNoSession = errors.New("provider session not found")

// StateKind discriminates UserState.
type StateKind int

const (
	// StateLoading — a refresh is in flight, nothing known yet.
	StateLoading StateKind = iota
	// StateLoggedOut — no session, or the vendor rejected the stored one.
	StateLoggedOut
	// StateLoggedIn — Profile is populated.
	StateLoggedIn
)

// Profile is the vendor account as shown in the management UI.
type Profile struct {
	Name     string
	Phone    string
	Email    string
	Balance  string
	Verified bool
}

// UserState is the tagged union for a provider's account state. Profile is
// meaningful only when Kind is StateLoggedIn.
type UserState struct {
	Kind    StateKind
	Profile Profile
}

func Loading() UserState {
	return UserState{Kind: StateLoading}
}

func LoggedOut() UserState {
	return UserState{Kind: StateLoggedOut}
}

func LoggedIn(profile Profile) UserState {
	return UserState{Kind: StateLoggedIn, Profile: profile}
}

// Provider is the mandatory capability set. RefreshUser never returns an
// error: it is called opportunistically and any non-success degrades to
// LoggedOut so unrelated UI state cannot be crashed by a flaky vendor.
type Provider interface {
	ID() string
	Name() string
	Homepage() string
	Logo() string

	RefreshUser(ctx context.Context) UserState
	Logout(ctx context.Context) error

	BaseURL() string
	CreateKey(ctx context.Context) (keys.APIKey, error)
}

// Verification is a vendor's real-identity record, masked by the vendor.
type Verification struct {
	Name   string
	CardID string
}

// VerificationRequest is the submission payload for a real-identity check.
type VerificationRequest struct {
	Name     string
	CardType int
	CardID   string
}

// Verifier is the optional real-identity capability. Check returns nil when
// the account is not verified; Submit returns the URL the user completes
// the check at.
type Verifier interface {
	CheckVerification(ctx context.Context) (*Verification, error)
	SubmitVerification(ctx context.Context, req VerificationRequest) (string, error)
}

// PaymentStatus is the tri-state outcome of a QR payment poll.
type PaymentStatus string

const (
	PaymentSuccess  PaymentStatus = "success"
	PaymentWait     PaymentStatus = "wait"
	PaymentCanceled PaymentStatus = "canceled"
)

// PaymentOrder is a created QR top-up: the code to render and how long it
// stays valid.
type PaymentOrder struct {
	OrderID   string
	QRCodeURL string
	ExpiresIn int // seconds
}

// QRPayments is the polling top-up capability.
type QRPayments interface {
	CreatePayment(ctx context.Context, amount int) (*PaymentOrder, error)
	CheckPayment(ctx context.Context, orderID string) (PaymentStatus, error)
}

// WebsitePayments is the pass-through top-up capability: the user is sent
// to the vendor's own billing page.
type WebsitePayments interface {
	PaymentURL() string
}

// Registry holds the known providers by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID()]; exists {
		return errors.Errorf("[Registry.Register] duplicate provider id %q", p.ID())
	}
	r.providers[p.ID()] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	return all
}
