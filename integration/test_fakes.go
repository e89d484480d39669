package integration

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	fakeGoogleCode  = "test-auth-code"
	fakeGoogleToken = "test-access-token"
	fakeGoogleEmail = "test@test.com"
	fakeGoogleName  = "Test User"
)

// FakeGoogleServer provides a fake Google OAuth server for testing. Its
// consent screen approves immediately and redirects back with a code.
type FakeGoogleServer struct {
	server *http.Server
	port   string

	mu        sync.Mutex
	challenge string // S256 challenge of the last authorization request
}

// NewFakeGoogleServer creates a new fake Google server
func NewFakeGoogleServer(port string) *FakeGoogleServer {
	m := &FakeGoogleServer{port: port}
	mux := http.NewServeMux()

	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		redirectURI, err := url.Parse(q.Get("redirect_uri"))
		if err != nil || redirectURI.Scheme == "" {
			http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
			return
		}

		if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
			http.Error(w, "PKCE required", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.challenge = q.Get("code_challenge")
		m.mu.Unlock()

		back := redirectURI.Query()
		back.Set("state", q.Get("state"))
		if q.Get("prompt") == "deny" {
			back.Set("error", "access_denied")
		} else {
			back.Set("code", fakeGoogleCode)
		}
		redirectURI.RawQuery = back.Encode()
		http.Redirect(w, r, redirectURI.String(), http.StatusFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != fakeGoogleCode ||
			r.FormValue("client_secret") != testClientSecret ||
			!m.verifyPKCE(r.FormValue("code_verifier")) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fakeGoogleToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != fakeGoogleToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "109876543210",
			"email": fakeGoogleEmail,
			"name":  fakeGoogleName,
			"hd":    "test.com",
		})
	})

	m.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return m
}

func (m *FakeGoogleServer) verifyPKCE(verifier string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if verifier == "" || m.challenge == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == m.challenge
}

// Start starts the fake Google server
func (m *FakeGoogleServer) Start() error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop stops the fake Google server
func (m *FakeGoogleServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
