package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/dgellow/throwapin-auth/internal/crypto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes are requested when Start is called without scopes
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"openid",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// AuthorizationRequest is one login attempt, carried until the matching callback
type AuthorizationRequest struct {
	State       string   `json:"state"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`

	// CodeVerifier is the PKCE secret whose S256 challenge went to the provider
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// Endpoint overrides the provider URLs; empty fields keep Google's defaults
type Endpoint struct {
	AuthURL  string
	TokenURL string
}

// FlowManager runs the client side of the authorization-code flow.
// It is read-only after construction and safe for concurrent use.
type FlowManager struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewFlowManager creates a flow manager for the given client registration.
// httpClient is used for the token exchange; nil means http.DefaultClient.
func NewFlowManager(clientID, clientSecret string, endpoint Endpoint, httpClient *http.Client) *FlowManager {
	ep := google.Endpoint
	if endpoint.AuthURL != "" {
		ep.AuthURL = endpoint.AuthURL
	}
	if endpoint.TokenURL != "" {
		ep.TokenURL = endpoint.TokenURL
	}
	// client_secret travels in the POST body, never in a Basic header
	ep.AuthStyle = oauth2.AuthStyleInParams

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &FlowManager{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     ep,
		},
		httpClient: httpClient,
	}
}

// Start builds the provider authorization URL for a fresh login attempt.
// The caller must persist the returned request until the callback.
func (m *FlowManager) Start(scopes []string, redirectURI string) (string, AuthorizationRequest, error) {
	if redirectURI == "" {
		return "", AuthorizationRequest{}, errors.New("redirect URI is required")
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", AuthorizationRequest{}, fmt.Errorf("generating state: %w", err)
	}

	req := AuthorizationRequest{
		State:        state,
		RedirectURI:  redirectURI,
		Scopes:       slices.Clone(scopes),
		CodeVerifier: oauth2.GenerateVerifier(),
	}

	cfg := m.configFor(req)
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(req.CodeVerifier),
	)
	return authURL, req, nil
}

// Exchange validates the callback against the pending request and trades the
// code for tokens. A nil pending request is treated as a state mismatch.
func (m *FlowManager) Exchange(ctx context.Context, callbackURL *url.URL, pending *AuthorizationRequest) (*oauth2.Token, error) {
	query := callbackURL.Query()

	if code := query.Get("error"); code != "" {
		return nil, &ProviderError{Code: code, Description: query.Get("error_description")}
	}

	if pending == nil || pending.State == "" {
		return nil, fmt.Errorf("%w: no authorization in progress", ErrStateMismatch)
	}
	state := query.Get("state")
	if subtle.ConstantTimeCompare([]byte(state), []byte(pending.State)) != 1 {
		return nil, ErrStateMismatch
	}

	code := query.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	var opts []oauth2.AuthCodeOption
	if pending.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(pending.CodeVerifier))
	}

	cfg := m.configFor(*pending)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	return token, nil
}

// configFor returns a per-request copy carrying the attempt's redirect URI and scopes
func (m *FlowManager) configFor(req AuthorizationRequest) oauth2.Config {
	cfg := m.config
	cfg.RedirectURL = req.RedirectURI
	cfg.Scopes = req.Scopes
	return cfg
}
