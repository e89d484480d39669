package browserauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/throwapin-auth/internal/cookie"
	"github.com/dgellow/throwapin-auth/internal/crypto"
	"github.com/dgellow/throwapin-auth/internal/idp"
	"github.com/dgellow/throwapin-auth/internal/log"
	"github.com/dgellow/throwapin-auth/internal/oauth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PendingTTL bounds how long a user may take at the provider's consent screen
const PendingTTL = 10 * time.Minute

// ErrUnauthenticated is returned when the request carries no valid session
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is the identity carried by a browser session cookie
type Session struct {
	ID        string
	User      idp.Profile
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionClaims is the JWT body of the session cookie
type sessionClaims struct {
	jwt.RegisteredClaims
	User idp.Profile `json:"user"`
}

// SessionManager issues and reads tamper-evident session cookies, and keeps
// the pending authorization request of an in-flight login.
//
// Sessions are stateless: nothing is stored server side, so a session is
// valid until its expiry or until the browser drops the cookie.
type SessionManager struct {
	sessionKey []byte
	stateToken crypto.TokenSigner
	ttl        time.Duration
	cookies    cookie.Policy
	now        func() time.Time
}

// NewSessionManager derives independent session and state keys from secret.
// now may be nil.
func NewSessionManager(secret []byte, ttl time.Duration, policy cookie.Policy, now func() time.Time) (*SessionManager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if now == nil {
		now = time.Now
	}

	sessionKey, err := crypto.DeriveKey(secret, crypto.PurposeSession)
	if err != nil {
		return nil, err
	}
	stateKey, err := crypto.DeriveKey(secret, crypto.PurposeOAuthState)
	if err != nil {
		return nil, err
	}

	return &SessionManager{
		sessionKey: sessionKey,
		stateToken: crypto.NewTokenSigner(stateKey, PendingTTL).WithClock(now),
		ttl:        ttl,
		cookies:    policy,
		now:        now,
	}, nil
}

// Issue signs a session for profile and sets it as the session cookie
func (m *SessionManager) Issue(w http.ResponseWriter, profile idp.Profile) (*Session, error) {
	now := m.now().Truncate(time.Second)
	session := &Session{
		ID:        uuid.NewString(),
		User:      profile,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   profile.Email,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		User: profile,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	m.cookies.SetSession(w, signed, m.ttl)

	log.LogDebugWithFields("browserauth", "Session issued", map[string]any{
		"email":     profile.Email,
		"sessionID": session.ID,
		"expiresAt": session.ExpiresAt,
	})
	return session, nil
}

// Read returns the session carried by the request, or ErrUnauthenticated
func (m *SessionManager) Read(r *http.Request) (*Session, error) {
	value, err := cookie.Get(r, cookie.SessionCookie)
	if err != nil || value == "" {
		return nil, ErrUnauthenticated
	}
	return m.parse(value)
}

func (m *SessionManager) parse(value string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (any, error) {
		return m.sessionKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		log.LogDebugWithFields("browserauth", "Rejected session cookie", map[string]any{
			"reason": jwtRejection(err),
		})
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if claims.User.Email == "" {
		return nil, fmt.Errorf("%w: session has no user", ErrUnauthenticated)
	}

	session := &Session{
		ID:        claims.ID,
		User:      claims.User,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	return session, nil
}

// Invalidate clears the session cookie
func (m *SessionManager) Invalidate(w http.ResponseWriter) {
	m.cookies.ClearSession(w)
}

// SavePending stores the in-flight authorization request in a signed,
// short-lived state cookie
func (m *SessionManager) SavePending(w http.ResponseWriter, req oauth.AuthorizationRequest) error {
	signed, err := m.stateToken.Sign(req)
	if err != nil {
		return fmt.Errorf("failed to sign authorization state: %w", err)
	}
	m.cookies.SetState(w, signed, m.stateToken.TTL())
	return nil
}

// TakePending returns the stored authorization request and clears the state
// cookie, so a given request can complete at most one callback. It returns
// nil when there is no valid pending request.
func (m *SessionManager) TakePending(w http.ResponseWriter, r *http.Request) *oauth.AuthorizationRequest {
	value, err := cookie.Get(r, cookie.StateCookie)
	if err != nil {
		return nil
	}
	m.cookies.ClearState(w)

	var req oauth.AuthorizationRequest
	if err := m.stateToken.Verify(value, &req); err != nil {
		log.LogDebugWithFields("browserauth", "Rejected state cookie", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if req.State == "" {
		return nil
	}
	return &req
}

func jwtRejection(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "algorithm"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return err.Error()
	}
}
