// Package server is the broker's HTTP surface: the discovery probe, local
// auth, app registration and grant management, key/preset CRUD, the generic
// store, the request-forwarding proxy, and the OpenAI-compatible gateway.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omnikey-app/omnikey/apps"
	"github.com/omnikey-app/omnikey/grants"
	"github.com/omnikey-app/omnikey/internal/config"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/presets"
	"github.com/omnikey-app/omnikey/store"
	"github.com/omnikey-app/omnikey/token"
	"github.com/omnikey-app/omnikey/usage"
	"github.com/omnikey-app/omnikey/users"
	"github.com/pkg/errors"
)

// Version is stamped at build time (-ldflags "-X ...server.Version=...").
var Version = "dev"

// Repos holds all repository dependencies for the Server.
type Repos struct {
	Users   users.Repo
	Apps    apps.Repo
	Keys    keys.Repo
	Presets presets.Repo
	Usage   usage.Repo
}

// UIOpener raises the management surface, typically by opening a browser
// with the given query parameters. Injectable so tests and headless runs
// can observe instead of opening windows.
type UIOpener func(params url.Values) error

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	repos   Repos
	kv      store.KV
	tokens  *token.Manager
	grants  *grants.Service
	openUI  UIOpener
	httpDo  func(*http.Request) (*http.Response, error)
	nowTime func() time.Time
}

type Option func(*Server)

// WithUIOpener sets the hook used to surface pending grants to the user.
func WithUIOpener(open UIOpener) Option {
	return func(s *Server) {
		s.openUI = open
	}
}

// WithHTTPDo replaces the outbound HTTP client used by the proxy and the
// gateway (primarily for testing).
func WithHTTPDo(do func(*http.Request) (*http.Response, error)) Option {
	return func(s *Server) {
		s.httpDo = do
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, repos Repos, kv store.KV, tokens *token.Manager, options ...Option) (*Server, error) {
	if repos.Users == nil || repos.Apps == nil || repos.Keys == nil || repos.Presets == nil || repos.Usage == nil {
		return nil, errors.New("[server.New] all repos are required")
	}
	if kv == nil {
		return nil, errors.New("[server.New] kv store is required")
	}
	if tokens == nil {
		return nil, errors.New("[server.New] token manager is required")
	}

	outbound := &http.Client{}
	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		kv:      kv,
		tokens:  tokens,
		openUI:  func(url.Values) error { return nil },
		httpDo:  outbound.Do,
		nowTime: time.Now,
	}
	s.env = cfg.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	grantService, err := grants.New(repos.Apps,
		grants.WithGrantTimeout(cfg.GetGrantTimeout()),
		grants.WithNotifier(s.notifyPendingGrant),
	)
	if err != nil {
		return nil, fmt.Errorf("[server.New] failed to create grant service: %w", err)
	}
	s.grants = grantService

	if err := s.InitialiseSystem(); err != nil {
		return nil, fmt.Errorf("[server.New] failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) notifyPendingGrant(app apps.App) {
	params := url.Values{
		"action":         {"register"},
		"appId":          {app.ID},
		"appName":        {app.Name},
		"appDescription": {app.Description},
	}
	if err := s.openUI(params); err != nil {
		log.Error().Err(err).Str("app", app.Name).Msg("failed to open management UI")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

const contentTypeJSON = "application/json; charset=utf-8"
