package security

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// GuestCookieName holds the signed id of an anonymous player
const GuestCookieName = "hayaoshi_guest"

// guestCookieTTL keeps a guest's local history for a year of inactivity
const guestCookieTTL = 365 * 24 * time.Hour

// NewGuestID creates a new UUID for an anonymous player
func NewGuestID() string {
	return uuid.New().String()
}

// IsSecureRequest determines if the request is over HTTPS
// Checks TLS connection, X-Forwarded-Proto header (for reverse proxies), and URL scheme
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	return r.URL.Scheme == "https"
}

// GuestCookie creates the cookie carrying a signed guest id.
// The Secure flag follows the request scheme.
func GuestCookie(r *http.Request, signedID string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     GuestCookieName,
		Value:    signedID,
		Path:     "/",
		Expires:  now.Add(guestCookieTTL),
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// DeleteGuestCookie clears the guest cookie
func DeleteGuestCookie(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     GuestCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
	}
}
