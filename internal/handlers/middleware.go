package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"hayaoshi/internal/identity"
	"hayaoshi/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PlayerContextKey ContextKey = "player"

// Player is whoever is playing behind a request: a resolved identity or a guest
type Player struct {
	Key      string // unique across identities and guests
	Identity string
	GuestID  string
	User     *identity.User
}

// IsGuest reports whether the player has no resolved identity
func (p Player) IsGuest() bool {
	return p.Identity == ""
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	resolver identity.Resolver
	signer   *security.Signer
	now      func() time.Time
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(resolver identity.Resolver, signer *security.Signer) *Middleware {
	if resolver == nil {
		resolver = identity.None{}
	}
	return &Middleware{resolver: resolver, signer: signer, now: time.Now}
}

// ResolvePlayer attaches a Player to the request. A bearer token must resolve;
// without one the request plays as a guest identified by a signed cookie,
// issued on first contact.
func (m *Middleware) ResolvePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token, ok := bearerToken(r); ok {
			user, err := m.resolver.Resolve(ctx, token)
			switch {
			case err == nil:
				ctx = identity.WithUser(ctx, user)
				player := Player{Key: "u:" + user.ID, Identity: user.ID, User: &user}
				next.ServeHTTP(w, r.WithContext(withPlayer(ctx, player)))
				return
			case errors.Is(err, identity.ErrNoToken):
				// identity disabled; fall through to guest play
			case errors.Is(err, identity.ErrInvalidToken):
				respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
				return
			default:
				respondWithError(w, http.StatusBadGateway, "Identity provider unavailable", "Error resolving identity", err)
				return
			}
		}

		guestID := ""
		if cookie, err := r.Cookie(security.GuestCookieName); err == nil {
			if id, ok := m.signer.Verify(cookie.Value); ok {
				guestID = id
			}
		}
		if guestID == "" {
			guestID = security.NewGuestID()
			signed, err := m.signer.Sign(guestID)
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error signing guest id", err)
				return
			}
			http.SetCookie(w, security.GuestCookie(r, signed, m.now()))
		}

		player := Player{Key: "g:" + guestID, GuestID: guestID}
		next.ServeHTTP(w, r.WithContext(withPlayer(ctx, player)))
	})
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func withPlayer(ctx context.Context, p Player) context.Context {
	return context.WithValue(ctx, PlayerContextKey, p)
}

// GetPlayerFromContext retrieves the player from the request context
func GetPlayerFromContext(ctx context.Context) (Player, bool) {
	p, ok := ctx.Value(PlayerContextKey).(Player)
	return p, ok
}
