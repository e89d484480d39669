package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ValidCode is the only authorization code the fake provider accepts
const ValidCode = "valid-code"

// FakeProviderConfig shapes the responses of a FakeProvider.
// Zero statuses mean 200.
type FakeProviderConfig struct {
	TokenStatus    int
	UserInfoStatus int
	UserInfo       map[string]any
}

// FakeProvider serves the token and userinfo endpoints of a Google-like
// identity provider
type FakeProvider struct {
	Server *httptest.Server
	config FakeProviderConfig

	mu            sync.Mutex
	tokenCalls    int
	userInfoCalls int
	redirectURIs  []string
}

// NewFakeProvider starts a provider that is closed with the test
func NewFakeProvider(t *testing.T, config FakeProviderConfig) *FakeProvider {
	t.Helper()
	if config.UserInfo == nil {
		config.UserInfo = map[string]any{
			"sub":            "1234567890",
			"email":          "ada@example.com",
			"email_verified": true,
			"name":           "Ada Lovelace",
			"given_name":     "Ada",
		}
	}

	p := &FakeProvider{config: config}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("GET /userinfo", p.handleUserInfo)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *FakeProvider) AuthURL() string     { return p.Server.URL + "/o/oauth2/auth" }
func (p *FakeProvider) TokenURL() string    { return p.Server.URL + "/token" }
func (p *FakeProvider) UserInfoURL() string { return p.Server.URL + "/userinfo" }

// TokenCalls returns how many code exchanges were attempted
func (p *FakeProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// UserInfoCalls returns how many userinfo requests were served
func (p *FakeProvider) UserInfoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userInfoCalls
}

// RedirectURIs returns the redirect_uri of every token request, in order
func (p *FakeProvider) RedirectURIs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.redirectURIs...)
}

func (p *FakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	p.mu.Lock()
	p.tokenCalls++
	p.redirectURIs = append(p.redirectURIs, r.PostForm.Get("redirect_uri"))
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if p.config.TokenStatus != 0 && p.config.TokenStatus != http.StatusOK {
		w.WriteHeader(p.config.TokenStatus)
		_, _ = w.Write([]byte(`{"error":"server_error"}`))
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != ValidCode {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Malformed auth code."}`))
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-" + ValidCode,
		"refresh_token": "refresh-" + ValidCode,
		"token_type":    "Bearer",
		"expires_in":    3599,
		"scope":         "openid https://www.googleapis.com/auth/userinfo.email",
	})
}

func (p *FakeProvider) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.userInfoCalls++
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		return
	}
	if p.config.UserInfoStatus != 0 && p.config.UserInfoStatus != http.StatusOK {
		w.WriteHeader(p.config.UserInfoStatus)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Request had insufficient authentication scopes.","status":"PERMISSION_DENIED"}}`))
		return
	}

	_ = json.NewEncoder(w).Encode(p.config.UserInfo)
}
