// Package apps holds the registration records for third-party applications
// that have asked the broker for a credential. An app's ID doubles as the
// capability token it presents on later registrations and on gateway calls,
// so IDs are always generated, never caller-chosen.
package apps

import (
	"time"

	"github.com/google/uuid"
)

// App is a registered third-party application. Granted flips only through
// an explicit user decision; CreatedAt and LastActiveAt are written by the
// broker alone.
type App struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	KeyID        string    `json:"key"`
	Granted      bool      `json:"granted"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// NewID returns a fresh capability token for an app. The value is an opaque
// lookup key with enough entropy that possession proves prior issuance.
func NewID() string {
	return uuid.NewString()
}
