// Package identity resolves the player behind a request. A resolved identity
// scopes remote storage; without one the game runs against local storage only.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrNoToken means the request carried no credential
	ErrNoToken = errors.New("no identity token")
	// ErrInvalidToken means a credential was present but rejected
	ErrInvalidToken = errors.New("invalid identity token")
)

// User is a resolved identity
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Resolver turns a bearer token into a User
type Resolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}

// None never resolves an identity
type None struct{}

func (None) Resolve(ctx context.Context, token string) (User, error) {
	return User{}, ErrNoToken
}

type contextKey string

const userContextKey contextKey = "identity"

// WithUser stores u in ctx
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom returns the user stored by WithUser
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok && u.ID != ""
}
