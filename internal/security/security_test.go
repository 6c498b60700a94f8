package security

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("secret")
	id := NewGuestID()

	signed, err := signer.Sign(id)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	got, ok := signer.Verify(signed)
	if !ok || got != id {
		t.Fatalf("Verify() = %q, %v, want %q, true", got, ok, id)
	}

	if _, err := signer.Sign(""); err == nil {
		t.Error("Sign(\"\") error = nil, want error")
	}
}

func TestSignerRejectsTampering(t *testing.T) {
	signer := NewSigner("secret")
	signed, _ := signer.Sign("guest-1")

	tests := []struct {
		name   string
		signed string
	}{
		{name: "empty", signed: ""},
		{name: "no signature", signed: "guest-1"},
		{name: "trailing dot", signed: "guest-1."},
		{name: "other id", signed: "guest-2" + signed[len("guest-1"):]},
		{name: "other secret", signed: mustSign(t, NewSigner("other"), "guest-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := signer.Verify(tt.signed); ok {
				t.Errorf("Verify(%q) ok = true, want false", tt.signed)
			}
		})
	}
}

func mustSign(t *testing.T, s *Signer, v string) string {
	t.Helper()
	signed, err := s.Sign(v)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return signed
}

func TestRateLimiterRefillsPerWindow(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests were rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed, want rejected")
	}
	if !rl.Allow("b") {
		t.Error("other key rejected, want allowed")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("request after window rejected, want allowed")
	}

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	if len(rl.visitors) != 0 {
		t.Errorf("visitors after cleanup = %d, want 0", len(rl.visitors))
	}
}

func TestLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := []int{http.StatusNoContent, http.StatusTooManyRequests}
	for i, want := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies() error = %v", err)
	}

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "untrusted peer ignores forwarded", headers: map[string]string{"X-Forwarded-For": "1.1.1.1"}, remote: "3.3.3.3:1", want: "3.3.3.3"},
		{name: "untrusted peer ignores real ip", headers: map[string]string{"X-Real-IP": "4.4.4.4"}, remote: "3.3.3.3:1", want: "3.3.3.3"},
		{name: "trusted proxy", headers: map[string]string{"X-Forwarded-For": "1.1.1.1"}, remote: "10.0.0.5:1", want: "1.1.1.1"},
		{name: "spoofed first hop", headers: map[string]string{"X-Forwarded-For": "9.9.9.9, 2.2.2.2"}, remote: "10.0.0.5:1", want: "2.2.2.2"},
		{name: "trusted hops skipped", headers: map[string]string{"X-Forwarded-For": "2.2.2.2, 10.1.1.1"}, remote: "192.168.1.1:1", want: "2.2.2.2"},
		{name: "all hops trusted", headers: map[string]string{"X-Forwarded-For": "10.2.2.2, 10.1.1.1"}, remote: "10.0.0.5:1", want: "10.2.2.2"},
		{name: "trusted real ip", headers: map[string]string{"X-Real-IP": "4.4.4.4"}, remote: "10.0.0.5:1", want: "4.4.4.4"},
		{name: "remote addr", remote: "3.3.3.3:1", want: "3.3.3.3"},
		{name: "remote without port", remote: "3.3.3.3", want: "3.3.3.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req, proxies); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitIgnoresForwardedForFromClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := []int{http.StatusNoContent, http.StatusTooManyRequests}
	for i, want := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "3.3.3.3:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.1.1.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestParseTrustedProxies(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
		wantErr bool
	}{
		{name: "empty", entries: nil, want: 0},
		{name: "ip and range", entries: []string{"127.0.0.1", " 10.0.0.0/8 ", ""}, want: 2},
		{name: "ipv6", entries: []string{"::1"}, want: 1},
		{name: "bad ip", entries: []string{"proxy.local"}, wantErr: true},
		{name: "bad range", entries: []string{"10.0.0.0/40"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrustedProxies(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrustedProxies() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d proxies, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGuestCookieSecureFlag(t *testing.T) {
	now := time.Unix(1700000000, 0)

	plain := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	if c := GuestCookie(plain, "v", now); c.Secure {
		t.Error("Secure = true on plain HTTP, want false")
	}

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	if c := GuestCookie(proxied, "v", now); !c.Secure {
		t.Error("Secure = false behind HTTPS proxy, want true")
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	c := GuestCookie(direct, "v", now)
	if !c.Secure {
		t.Error("Secure = false on TLS, want true")
	}
	if !c.Expires.Equal(now.Add(guestCookieTTL)) {
		t.Errorf("Expires = %v, want %v", c.Expires, now.Add(guestCookieTTL))
	}

	if d := DeleteGuestCookie(plain); d.MaxAge != -1 {
		t.Errorf("delete MaxAge = %d, want -1", d.MaxAge)
	}
}
