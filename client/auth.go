package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const loginPath = "/auth/login"

// LoginStatus values echoed by the broker's auth endpoints.
const (
	LoginStatusSuccess       = "success"
	LoginStatusError         = "error"
	LoginStatusNotRegistered = "not_registered"
)

// LoginResult carries the broker's auth outcome. A wrong password is a
// result with status "error", not a transport failure.
type LoginResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Login authenticates against the broker. On success the transport's
// identity is set, so subsequent calls carry the bearer token.
func Login(ctx context.Context, transport *Transport, username, password string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, errors.Wrap(err, "[Login] marshal credentials")
	}

	resp, err := transport.Do(ctx, http.MethodPost, loginPath, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("[Login] broker status %d: %s", resp.Status, string(resp.Body))
	}

	var result LoginResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errors.Wrap(err, "[Login] decode response")
	}

	if result.Status == LoginStatusSuccess {
		transport.SetIdentity(Identity{Username: result.Username, Token: result.Token})
	}
	return &result, nil
}
