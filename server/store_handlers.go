package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/store"
)

// Store handlers expose the broker's generic persistence to authorized
// callers. Values are stored verbatim; JSON bodies survive a round trip
// byte-for-byte, which client-side session stores rely on.

func (s *Server) StoreGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, key := r.PathValue("collection"), r.PathValue("key")
		value, err := s.kv.Get(collection, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to read value")
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(value)
	}
}

func (s *Server) StorePutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, key := r.PathValue("collection"), r.PathValue("key")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read body")
			return
		}
		if !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "Body must be valid JSON")
			return
		}
		if err := s.kv.Put(collection, key, bytes.TrimSpace(body)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save value")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Saved"})
	}
}

func (s *Server) StoreDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, key := r.PathValue("collection"), r.PathValue("key")
		if err := s.kv.Delete(collection, key); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to delete value")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
	}
}

func (s *Server) StoreListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := r.PathValue("collection")
		values, err := s.kv.List(collection)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list values")
			return
		}
		items := make([]json.RawMessage, 0, len(values))
		for _, v := range values {
			items = append(items, json.RawMessage(v))
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) StoreClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := r.PathValue("collection")
		if err := s.kv.Clear(collection); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear collection")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Cleared"})
	}
}
