package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dgellow/throwapin-auth/internal/browserauth"
	"github.com/dgellow/throwapin-auth/internal/idp"
	jsonwriter "github.com/dgellow/throwapin-auth/internal/json"
	"github.com/dgellow/throwapin-auth/internal/log"
	"github.com/dgellow/throwapin-auth/internal/oauth"
	"github.com/dgellow/throwapin-auth/internal/storage"
	"golang.org/x/oauth2"
)

// CallbackPath is where the provider sends the browser back after consent
const CallbackPath = "/login/google/callback"

// AuthorizationFlow runs the provider side of the authorization code grant
type AuthorizationFlow interface {
	Start(scopes []string, redirectURI string) (string, oauth.AuthorizationRequest, error)
	Exchange(ctx context.Context, callbackURL *url.URL, pending *oauth.AuthorizationRequest) (*oauth2.Token, error)
}

// ProfileFetcher resolves an access token to the user's profile
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token *oauth2.Token) (idp.Profile, error)
}

// AuthHandlers provides the browser login HTTP handlers with dependency injection
type AuthHandlers struct {
	flow        AuthorizationFlow
	userInfo    ProfileFetcher
	store       storage.UserStore
	sessions    *browserauth.SessionManager
	frontendURL string
	redirectURI string
}

// NewAuthHandlers creates new auth handlers with dependency injection.
// An empty redirectURI is derived from each incoming request.
func NewAuthHandlers(
	flow AuthorizationFlow,
	userInfo ProfileFetcher,
	store storage.UserStore,
	sessions *browserauth.SessionManager,
	frontendURL string,
	redirectURI string,
) *AuthHandlers {
	return &AuthHandlers{
		flow:        flow,
		userInfo:    userInfo,
		store:       store,
		sessions:    sessions,
		frontendURL: frontendURL,
		redirectURI: redirectURI,
	}
}

// RegisterRoutes mounts the login, callback, whoami and logout endpoints
func (h *AuthHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login/google", h.LoginHandler)
	mux.HandleFunc("GET "+CallbackPath, h.CallbackHandler)
	mux.HandleFunc("GET /api/me", h.MeHandler)
	mux.HandleFunc("GET /logout", h.LogoutHandler)
}

// LoginHandler starts the authorization flow and redirects to the provider
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	authURL, pending, err := h.flow.Start(oauth.DefaultScopes, h.callbackURL(r))
	if err != nil {
		log.LogError("Failed to start authorization: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	if err := h.sessions.SavePending(w, pending); err != nil {
		log.LogError("Failed to store authorization state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	log.LogDebugWithFields("auth", "Redirecting to provider", map[string]any{
		"redirectURI": pending.RedirectURI,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler completes the flow: validates state, exchanges the code,
// records the user and issues the session. No session is set on failure.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending := h.sessions.TakePending(w, r)

	token, err := h.flow.Exchange(ctx, r.URL, pending)
	if err != nil {
		h.writeExchangeError(w, err)
		return
	}

	profile, err := h.userInfo.FetchProfile(ctx, token)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to get user info", map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, idp.ErrUserInfoFetchFailed) {
			jsonwriter.WriteBadRequest(w, "Failed to get user info")
		} else {
			jsonwriter.WriteInternalServerError(w, "Failed to get user info")
		}
		return
	}

	if err := h.store.UpsertUser(ctx, profile); err != nil {
		log.LogErrorWithFields("auth", "Failed to save user", map[string]any{
			"email": profile.Email,
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to save user")
		return
	}

	if _, err := h.sessions.Issue(w, profile); err != nil {
		log.LogError("Failed to issue session for %s: %v", profile.Email, err)
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	log.LogInfoWithFields("auth", "User logged in", map[string]any{
		"email":    profile.Email,
		"authType": profile.AuthType,
	})
	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

func (h *AuthHandlers) writeExchangeError(w http.ResponseWriter, err error) {
	fields := map[string]any{"error": err.Error()}

	switch {
	case errors.Is(err, oauth.ErrStateMismatch):
		log.LogWarnWithFields("auth", "Rejected callback with invalid state", fields)
		jsonwriter.WriteBadRequest(w, "Invalid state parameter")
	case errors.Is(err, oauth.ErrAuthorizationDenied):
		log.LogInfoWithFields("auth", "User denied authorization", fields)
		jsonwriter.WriteBadRequest(w, "Authorization denied")
	case errors.Is(err, oauth.ErrMissingCode):
		log.LogWarnWithFields("auth", "Callback without authorization code", fields)
		jsonwriter.WriteBadRequest(w, "Missing authorization code")
	default:
		log.LogErrorWithFields("auth", "Token exchange failed", fields)
		jsonwriter.WriteInternalServerError(w, "Failed to exchange authorization code")
	}
}

// MeHandler returns the profile of the logged in user
func (h *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Read(r)
	if err != nil {
		jsonwriter.WriteUnauthorized(w)
		return
	}
	_ = jsonwriter.Write(w, session.User)
}

// LogoutHandler clears the session cookie
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.Invalidate(w)
	jsonwriter.WriteMessage(w, "Logged out successfully")
}

// callbackURL returns the configured redirect URI or derives one from the
// request as seen by the client
func (h *AuthHandlers) callbackURL(r *http.Request) string {
	if h.redirectURI != "" {
		return h.redirectURI
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	return (&url.URL{Scheme: scheme, Host: r.Host, Path: CallbackPath}).String()
}
