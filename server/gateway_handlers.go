package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omnikey-app/omnikey/apps"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/presets"
	"github.com/omnikey-app/omnikey/usage"
)

var errKeyUnavailable = errors.New("no api key available")

// GatewayHandler is the scoped-key relay. The caller authenticates with the
// token it received at registration (its app id), never sees the real
// credential, and talks to the broker exactly as it would to an
// OpenAI-compatible endpoint. The broker swaps the Authorization header for
// the resolved key's token and streams the response back unbuffered, so SSE
// completions flow through chunk by chunk.
func (s *Server) GatewayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, ok := s.gatewayApp(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid or missing app token")
			return
		}

		key, err := s.resolveKey(app.KeyID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "No API key available for this app")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		model := usage.ModelFromRequest(body)
		endpoint := strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(RouteGateway, "/"))

		target := strings.TrimSuffix(key.BaseURL, "/") + endpoint
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		outbound, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
		if err != nil {
			writeError(w, http.StatusBadGateway, "Failed to build upstream request")
			return
		}
		copyGatewayHeaders(outbound.Header, r.Header)
		outbound.Header.Set("Authorization", "Bearer "+key.Token)

		resp, err := s.httpDo(outbound)
		if err != nil {
			s.recordUsage(app.ID, app.Name, key.Name, usage.Tokens{Model: model}, endpoint, "error")
			writeError(w, http.StatusBadGateway, "Failed to reach upstream")
			return
		}
		defer resp.Body.Close()

		s.grants.TouchLastActive(app.ID)

		status := "success"
		if resp.StatusCode >= 400 {
			status = "error"
		}

		for name, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
			tokens := s.relayStream(w, resp.Body, model)
			s.recordUsage(app.ID, app.Name, key.Name, tokens, endpoint, status)
			return
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Error().Err(err).Msg("GatewayHandler upstream read")
			return
		}
		_, _ = w.Write(respBody)

		tokens := usage.TokensFromResponse(respBody)
		if tokens.Model == "" {
			tokens.Model = model
		}
		s.recordUsage(app.ID, app.Name, key.Name, tokens, endpoint, status)
	}
}

// gatewayApp resolves the bearer token to a granted app record.
func (s *Server) gatewayApp(r *http.Request) (apps.App, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return apps.App{}, false
	}
	record, err := s.repos.Apps.Get(token)
	if err != nil || !record.Granted {
		return apps.App{}, false
	}
	return record, true
}

// resolveKey returns the key attached to the grant, or falls back to the
// most recently used key of the default preset.
func (s *Server) resolveKey(keyID string) (keys.APIKey, error) {
	if keyID != "" {
		return s.repos.Keys.Get(keyID)
	}
	preset, err := s.repos.Presets.Get(presets.DefaultID)
	if err != nil {
		return keys.APIKey{}, err
	}
	if len(preset.Keys) == 0 {
		return keys.APIKey{}, errKeyUnavailable
	}
	return s.repos.Keys.Get(preset.Keys[len(preset.Keys)-1])
}

// relayStream copies an SSE body through chunk by chunk, flushing after each
// write, and harvests the usage counters providers emit in the final event.
func (s *Server) relayStream(w http.ResponseWriter, body io.Reader, model string) usage.Tokens {
	flusher, _ := w.(http.Flusher)
	extractor := usage.NewStreamExtractor(model)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			extractor.Process(chunk)
			if _, werr := w.Write(chunk); werr != nil {
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			break
		}
	}
	return extractor.Tokens()
}

func (s *Server) recordUsage(appID, appName, keyName string, tokens usage.Tokens, endpoint, status string) {
	record := usage.NewRecord(appID, appName, keyName, tokens.Model, endpoint, tokens.Prompt, tokens.Output, status)
	if err := s.repos.Usage.Put(record.ID, record); err != nil {
		log.Error().Err(err).Msg("GatewayHandler record usage")
	}
}

func copyGatewayHeaders(dst, src http.Header) {
	for name, values := range src {
		switch http.CanonicalHeaderKey(name) {
		case "Authorization", "Host", "Connection", "Content-Length":
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
