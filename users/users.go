// Package users holds the broker's local user accounts. The broker is a
// single-profile service: in practice one user owns the whole database, but
// the model does not assume it.
package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// New creates a user with a bcrypt-hashed password.
func New(username, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}, nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether the plaintext password matches the stored
// hash.
func (u User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

type Repo interface {
	Get(username string) (User, error)
	Put(username string, user User) error
	List() ([]User, error)
	Delete(username string) error
	Clear() error
}
