package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// SessionCollection is the store collection holding one opaque session
// payload per provider id.
const SessionCollection = "provider_sessions"

// SessionStore persists provider-defined session payloads in the broker.
// An absent session is the single discriminator for "logged out": callers
// must never infer login state from the payload's shape.
type SessionStore struct {
	transport *Transport
}

func NewSessionStore(transport *Transport) *SessionStore {
	return &SessionStore{transport: transport}
}

// Get loads the session for providerID into out. The second return is false
// when no session exists; out is untouched in that case.
func (s *SessionStore) Get(ctx context.Context, providerID string, out any) (bool, error) {
	resp, err := s.transport.Do(ctx, http.MethodGet, s.path(providerID), nil)
	if err != nil {
		return false, err
	}
	if resp.Status == http.StatusNotFound {
		return false, nil
	}
	if !resp.OK() {
		return false, fmt.Errorf("[SessionStore.Get] broker status %d", resp.Status)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return false, errors.Wrap(err, "[SessionStore.Get] decode session")
	}
	return true, nil
}

func (s *SessionStore) Put(ctx context.Context, providerID string, session any) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[SessionStore.Put] marshal session")
	}
	resp, err := s.transport.Do(ctx, http.MethodPut, s.path(providerID), payload)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("[SessionStore.Put] broker status %d", resp.Status)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, providerID string) error {
	resp, err := s.transport.Do(ctx, http.MethodDelete, s.path(providerID), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("[SessionStore.Delete] broker status %d", resp.Status)
	}
	return nil
}

func (s *SessionStore) path(providerID string) string {
	return "/store/" + SessionCollection + "/" + providerID
}
