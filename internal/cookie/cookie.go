package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/throwapin-auth/internal/log"
)

// Cookie names. The session name matches the one used by the previous
// deployment so existing frontends keep working.
const (
	SessionCookie = "google-login-session"
	StateCookie   = "google-login-state"
)

// Policy carries the attributes shared by every cookie this service writes
type Policy struct {
	// Secure must be true for any deployment reached over HTTPS
	Secure bool
}

func (p Policy) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// SetSession sets the session cookie
func (p Policy) SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	p.set(w, SessionCookie, value, maxAge)

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   p.Secure,
		"sameSite": "Lax",
	})
}

// SetState sets the cookie carrying the pending authorization request.
// It must be Lax, not Strict: the provider's redirect back is a cross-site
// top-level navigation.
func (p Policy) SetState(w http.ResponseWriter, value string, maxAge time.Duration) {
	p.set(w, StateCookie, value, maxAge)
}

// Clear removes a cookie by setting MaxAge to -1
func (p Policy) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ClearSession removes the session cookie
func (p Policy) ClearSession(w http.ResponseWriter) {
	p.Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearState removes the pending authorization cookie
func (p Policy) ClearState(w http.ResponseWriter) {
	p.Clear(w, StateCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
