package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// GoogleResolver treats the bearer token as a Google access token and looks
// up its owner on the userinfo endpoint.
type GoogleResolver struct {
	userInfoURL string
}

// NewGoogleResolver creates a resolver calling userInfoURL
func NewGoogleResolver(userInfoURL string) *GoogleResolver {
	return &GoogleResolver{userInfoURL: userInfoURL}
}

// Resolve fetches the user owning token. Identities are prefixed with
// "google:" so they never collide with other issuers.
func (g *GoogleResolver) Resolve(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoToken
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return User{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("failed to fetch Google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return User{}, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("failed to fetch Google user info: status %d", resp.StatusCode)
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return User{}, fmt.Errorf("failed to parse Google user info: %w", err)
	}
	if payload.ID == "" {
		return User{}, fmt.Errorf("%w: userinfo without id", ErrInvalidToken)
	}

	return User{ID: "google:" + payload.ID, Email: payload.Email, Name: payload.Name}, nil
}
