// Package keys holds the API keys the broker can hand out under grants.
// A key is either entered manually or created by a provider adapter after
// a successful upstream issuance flow.
package keys

import "github.com/google/uuid"

// NewID returns a fresh key id.
func NewID() string {
	return uuid.NewString()
}

// APIKey is a provider-compatible credential: the base URL plus the secret
// token, tagged with the vendor it came from and the wire protocol it
// speaks.
type APIKey struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`     // vendor tag: "manual", "siliconflow", "openrouter"
	Protocol string `json:"protocol"` // "openai", "anthropic"
	BaseURL  string `json:"baseUrl"`
	Token    string `json:"token"`
}

type Repo interface {
	Get(id string) (APIKey, error)
	Put(id string, key APIKey) error
	List() ([]APIKey, error)
	Delete(id string) error
	Clear() error
}
