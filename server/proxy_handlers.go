package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

type ProxyRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type ProxyResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// ProxyHandler relays an arbitrary HTTP request on behalf of a local caller
// and reports the upstream outcome inside a 200 envelope. Only a failure to
// relay at all (bad request, dial error) produces a non-2xx here; an
// upstream 4xx/5xx is still a successful relay.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		if req.Method == "" {
			req.Method = http.MethodGet
		}
		if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
			writeError(w, http.StatusBadRequest, "url must be absolute")
			return
		}

		outbound, err := http.NewRequestWithContext(r.Context(), strings.ToUpper(req.Method), req.URL, bytes.NewBufferString(req.Body))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to build upstream request")
			return
		}
		for name, value := range req.Headers {
			outbound.Header.Set(name, value)
		}

		resp, err := s.httpDo(outbound)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reach upstream")
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read upstream response")
			return
		}

		headers := make(map[string]string, len(resp.Header))
		for name := range resp.Header {
			headers[name] = resp.Header.Get(name)
		}

		writeJSON(w, http.StatusOK, ProxyResponse{
			Status:  resp.StatusCode,
			Headers: headers,
			Body:    string(body),
		})
	}
}
