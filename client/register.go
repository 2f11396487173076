package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const registerPath = "/app/register"

// GatewayPathPrefix is where the broker exposes the OpenAI-compatible
// gateway a granted app talks to with its scoped key.
const GatewayPathPrefix = "/openai"

// LaunchScheme is the custom URI scheme the packaging layer registers to
// start a dormant broker (omnikey://start).
const LaunchScheme = "omnikey"

// Registration identifies the calling app to the broker. UID is the
// capability token returned by a previous grant, if one was saved.
type Registration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UID         string `json:"uid,omitempty"`
}

// RegisterResult is the outcome of a registration call. Not-granted is a
// protocol state, not an error: the app surfaces it to its user and retries
// later, never in a tight loop.
type RegisterResult struct {
	Granted bool
	// BaseURL and APIKey form the provider-compatible credential pair.
	// APIKey doubles as the uid for the next registration call.
	BaseURL string
	APIKey  string
}

// Register runs the grant handshake against the broker. The call can block
// up to the broker's grant timeout while the user decides.
func Register(ctx context.Context, transport *Transport, reg Registration) (*RegisterResult, error) {
	if reg.Name == "" || reg.Description == "" {
		return nil, errors.New("[Register] name and description are required")
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, errors.Wrap(err, "[Register] marshal registration")
	}

	resp, err := transport.Do(ctx, http.MethodPost, registerPath, payload)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Status == http.StatusForbidden:
		return &RegisterResult{Granted: false}, nil
	case !resp.OK():
		return nil, fmt.Errorf("[Register] broker status %d: %s", resp.Status, string(resp.Body))
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, errors.Wrap(err, "[Register] decode response")
	}

	endpoint, err := transport.locator.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Register] %w: %w", ErrServiceUnavailable, err)
	}

	return &RegisterResult{
		Granted: true,
		BaseURL: endpoint.BaseURL() + GatewayPathPrefix,
		APIKey:  body.Token,
	}, nil
}
