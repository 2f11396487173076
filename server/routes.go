package server

import "net/http"

func (s *Server) initRoutes() {
	// Discovery and launch affordances: always unauthenticated.
	s.RegisterRouteFunc("GET "+RouteIndex, ChainMiddleware(s.CheckHandler(), s.APIMiddleware()...))

	// CORS preflights for every route; the CORS middleware answers them
	// before the handler runs, so a bare 200 is never reached.
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteOpenUI, ChainMiddleware(s.OpenUIHandler(), s.APIMiddleware()...))

	// Local auth
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterUserHandler(), s.APIMiddleware()...))

	// App registration is open (the caller has no credentials yet); the
	// rest of app management requires the user's bearer token.
	s.RegisterRouteFunc("POST "+RouteAppRegister, ChainMiddleware(s.AppRegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAppList, s.authed(s.AppListHandler()))
	s.RegisterRouteFunc("POST "+RouteAppToggle, s.authed(s.AppToggleHandler()))
	s.RegisterRouteFunc("DELETE "+RouteAppDelete, s.authed(s.AppDeleteHandler()))
	s.RegisterRouteFunc("DELETE "+RouteAppClear, s.authed(s.AppClearHandler()))

	// Key management
	s.RegisterRouteFunc("GET "+RouteKeysList, s.authed(s.KeysListHandler()))
	s.RegisterRouteFunc("POST "+RouteKeysAdd, s.authed(s.KeysAddHandler()))
	s.RegisterRouteFunc("PUT "+RouteKeysUpdate, s.authed(s.KeysUpdateHandler()))
	s.RegisterRouteFunc("DELETE "+RouteKeysDelete, s.authed(s.KeysDeleteHandler()))

	// Presets
	s.RegisterRouteFunc("GET "+RoutePresetsList, s.authed(s.PresetsListHandler()))
	s.RegisterRouteFunc("POST "+RoutePresetsAdd, s.authed(s.PresetsAddHandler()))
	s.RegisterRouteFunc("PUT "+RoutePresetsUpdate, s.authed(s.PresetsUpdateHandler()))
	s.RegisterRouteFunc("DELETE "+RoutePresetsDelete, s.authed(s.PresetsDeleteHandler()))
	s.RegisterRouteFunc("POST "+RoutePresetsKeys, s.authed(s.PresetsAddKeyHandler()))

	// Generic store
	s.RegisterRouteFunc("GET "+RouteStoreKey, s.authed(s.StoreGetHandler()))
	s.RegisterRouteFunc("POST "+RouteStoreKey, s.authed(s.StorePutHandler()))
	s.RegisterRouteFunc("PUT "+RouteStoreKey, s.authed(s.StorePutHandler()))
	s.RegisterRouteFunc("DELETE "+RouteStoreKey, s.authed(s.StoreDeleteHandler()))
	s.RegisterRouteFunc("GET "+RouteStoreCollection, s.authed(s.StoreListHandler()))
	s.RegisterRouteFunc("DELETE "+RouteStoreCollection, s.authed(s.StoreClearHandler()))

	// Request forwarding
	s.RegisterRouteFunc("POST "+RouteProxy, s.authed(s.ProxyHandler()))

	// Usage
	s.RegisterRouteFunc("GET "+RouteUsageList, s.authed(s.UsageListHandler()))
	s.RegisterRouteFunc("POST "+RouteUsageClear, s.authed(s.UsageClearHandler()))

	// Scoped-key gateway: authenticated by app token, not user token.
	// Registered per method so each pattern is strictly more specific
	// than the catch-alls above; preflights ride the OPTIONS route.
	gateway := ChainMiddleware(s.GatewayHandler(), s.APIMiddleware()...)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		s.RegisterRouteFunc(method+" "+RouteGateway, gateway)
	}
}

func (s *Server) authed(handler http.HandlerFunc) http.HandlerFunc {
	mw := append(s.APIMiddleware(), s.RequireUserLogin())
	return ChainMiddleware(handler, mw...)
}
