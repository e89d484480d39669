package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgellow/throwapin-auth/internal/browserauth"
	"github.com/dgellow/throwapin-auth/internal/cookie"
	"github.com/dgellow/throwapin-auth/internal/idp"
	"github.com/dgellow/throwapin-auth/internal/oauth"
	"github.com/dgellow/throwapin-auth/internal/storage"
	"github.com/dgellow/throwapin-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testFrontendURL = "http://localhost:5173"

var adaProfile = idp.Profile{Email: "ada@example.com", Name: "Ada Lovelace", AuthType: idp.AuthTypeGoogle}

type testEnv struct {
	provider *testutil.FakeProvider
	app      *httptest.Server
	client   *http.Client
	jar      *cookiejar.Jar
}

func newTestEnv(t *testing.T, providerConfig testutil.FakeProviderConfig, store storage.UserStore) *testEnv {
	t.Helper()

	provider := testutil.NewFakeProvider(t, providerConfig)

	flow := oauth.NewFlowManager("test-client-id", "test-client-secret", oauth.Endpoint{
		AuthURL:  provider.AuthURL(),
		TokenURL: provider.TokenURL(),
	}, provider.Server.Client())
	userInfo := idp.NewUserInfoClient(provider.UserInfoURL(), provider.Server.Client())

	// Secure cookies are never sent back over plain http by the jar
	sessions, err := browserauth.NewSessionManager([]byte("test-secret-key-0123456789"), 24*time.Hour, cookie.Policy{Secure: false}, nil)
	require.NoError(t, err)

	handlers := NewAuthHandlers(flow, userInfo, store, sessions, testFrontendURL, "")
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", NewHealthHandler())
	handlers.RegisterRoutes(mux)

	app := httptest.NewServer(mux)
	t.Cleanup(app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		provider: provider,
		app:      app,
		jar:      jar,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.app.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// startLogin hits the login endpoint and returns the state sent to the provider
func (e *testEnv) startLogin(t *testing.T) string {
	t.Helper()
	resp := e.get(t, "/login/google")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (e *testEnv) callback(t *testing.T, state, code string) *http.Response {
	t.Helper()
	q := url.Values{}
	q.Set("state", state)
	q.Set("code", code)
	return e.get(t, CallbackPath+"?"+q.Encode())
}

func (e *testEnv) hasCookie(t *testing.T, name string) bool {
	t.Helper()
	u, err := url.Parse(e.app.URL)
	require.NoError(t, err)
	for _, c := range e.jar.Cookies(u) {
		if c.Name == name {
			return true
		}
	}
	return false
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestLoginFlow_EndToEnd(t *testing.T) {
	store := storage.NewMemoryStorage()
	env := newTestEnv(t, testutil.FakeProviderConfig{}, store)

	resp := env.get(t, "/api/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", errorBody(t, resp))

	state := env.startLogin(t)
	assert.True(t, env.hasCookie(t, cookie.StateCookie))

	resp = env.callback(t, state, testutil.ValidCode)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, testFrontendURL, resp.Header.Get("Location"))
	assert.True(t, env.hasCookie(t, cookie.SessionCookie))
	assert.False(t, env.hasCookie(t, cookie.StateCookie), "state is consumed by the callback")

	assert.Equal(t, []string{env.app.URL + CallbackPath}, env.provider.RedirectURIs())

	user, err := store.GetUser(context.Background(), adaProfile.Email)
	require.NoError(t, err)
	assert.Equal(t, adaProfile, user.Profile())

	resp = env.get(t, "/api/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"ada@example.com","name":"Ada Lovelace","auth_type":"google"}`, string(body))
}

func TestLoginFlow_RepeatLoginKeepsOneUser(t *testing.T) {
	store := storage.NewMemoryStorage()
	env := newTestEnv(t, testutil.FakeProviderConfig{}, store)

	for range 2 {
		state := env.startLogin(t)
		resp := env.callback(t, state, testutil.ValidCode)
		require.Equal(t, http.StatusFound, resp.StatusCode)
	}

	assert.Equal(t, 1, store.Count())
}

func TestLoginFlow_Logout(t *testing.T) {
	env := newTestEnv(t, testutil.FakeProviderConfig{}, storage.NewMemoryStorage())

	state := env.startLogin(t)
	require.Equal(t, http.StatusFound, env.callback(t, state, testutil.ValidCode).StatusCode)
	require.Equal(t, http.StatusOK, env.get(t, "/api/me").StatusCode)

	resp := env.get(t, "/logout")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Logged out successfully", body["message"])
	assert.False(t, env.hasCookie(t, cookie.SessionCookie))

	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/me").StatusCode)
}

func TestLoginFlow_LogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t, testutil.FakeProviderConfig{}, storage.NewMemoryStorage())

	resp := env.get(t, "/logout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallback_StateFailures(t *testing.T) {
	t.Run("mismatched state", func(t *testing.T) {
		store := &testutil.MockUserStore{}
		env := newTestEnv(t, testutil.FakeProviderConfig{}, store)

		env.startLogin(t)
		resp := env.callback(t, "forged-state", testutil.ValidCode)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid state parameter", errorBody(t, resp))
		assert.False(t, env.hasCookie(t, cookie.SessionCookie))
		assert.Zero(t, env.provider.TokenCalls(), "code must not be exchanged")
		store.AssertNotCalled(t, "UpsertUser", mock.Anything, mock.Anything)
	})

	t.Run("no login started", func(t *testing.T) {
		env := newTestEnv(t, testutil.FakeProviderConfig{}, &testutil.MockUserStore{})

		resp := env.callback(t, "some-state", testutil.ValidCode)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid state parameter", errorBody(t, resp))
		assert.False(t, env.hasCookie(t, cookie.SessionCookie))
	})

	t.Run("replayed state", func(t *testing.T) {
		env := newTestEnv(t, testutil.FakeProviderConfig{}, storage.NewMemoryStorage())

		state := env.startLogin(t)
		require.Equal(t, http.StatusFound, env.callback(t, state, testutil.ValidCode).StatusCode)

		resp := env.callback(t, state, testutil.ValidCode)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid state parameter", errorBody(t, resp))
		assert.Equal(t, 1, env.provider.TokenCalls())
	})

	t.Run("failed callback still consumes state", func(t *testing.T) {
		env := newTestEnv(t, testutil.FakeProviderConfig{}, storage.NewMemoryStorage())

		state := env.startLogin(t)
		require.Equal(t, http.StatusBadRequest, env.callback(t, "forged-state", testutil.ValidCode).StatusCode)

		resp := env.callback(t, state, testutil.ValidCode)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCallback_ProviderFailures(t *testing.T) {
	t.Run("user denied consent", func(t *testing.T) {
		env := newTestEnv(t, testutil.FakeProviderConfig{}, &testutil.MockUserStore{})

		state := env.startLogin(t)
		resp := env.get(t, CallbackPath+"?error=access_denied&state="+url.QueryEscape(state))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Authorization denied", errorBody(t, resp))
	})

	t.Run("missing code", func(t *testing.T) {
		env := newTestEnv(t, testutil.FakeProviderConfig{}, &testutil.MockUserStore{})

		state := env.startLogin(t)
		resp := env.get(t, CallbackPath+"?state="+url.QueryEscape(state))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing authorization code", errorBody(t, resp))
	})

	t.Run("token endpoint rejects code", func(t *testing.T) {
		store := &testutil.MockUserStore{}
		env := newTestEnv(t, testutil.FakeProviderConfig{}, store)

		state := env.startLogin(t)
		resp := env.callback(t, state, "stale-code")

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Failed to exchange authorization code", errorBody(t, resp))
		assert.False(t, env.hasCookie(t, cookie.SessionCookie))
		assert.Zero(t, env.provider.UserInfoCalls())
		store.AssertNotCalled(t, "UpsertUser", mock.Anything, mock.Anything)
	})

	t.Run("userinfo forbidden", func(t *testing.T) {
		store := &testutil.MockUserStore{}
		env := newTestEnv(t, testutil.FakeProviderConfig{UserInfoStatus: http.StatusForbidden}, store)

		state := env.startLogin(t)
		resp := env.callback(t, state, testutil.ValidCode)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Failed to get user info", errorBody(t, resp))
		assert.False(t, env.hasCookie(t, cookie.SessionCookie))
		assert.Equal(t, 1, env.provider.UserInfoCalls())
		store.AssertNotCalled(t, "UpsertUser", mock.Anything, mock.Anything)
	})
}

func TestCallback_StoreFailure(t *testing.T) {
	store := &testutil.MockUserStore{}
	store.On("UpsertUser", mock.Anything, adaProfile).Return(errors.New("connection refused"))
	env := newTestEnv(t, testutil.FakeProviderConfig{}, store)

	state := env.startLogin(t)
	resp := env.callback(t, state, testutil.ValidCode)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to save user", errorBody(t, resp))
	assert.False(t, env.hasCookie(t, cookie.SessionCookie))
	store.AssertExpectations(t)
}

func TestCallback_UpsertsFetchedProfile(t *testing.T) {
	store := &testutil.MockUserStore{}
	store.On("UpsertUser", mock.Anything, idp.Profile{
		Email:    "grace@example.com",
		Name:     "Grace",
		AuthType: idp.AuthTypeGoogle,
	}).Return(nil).Once()

	env := newTestEnv(t, testutil.FakeProviderConfig{
		UserInfo: map[string]any{"sub": "42", "email": "grace@example.com", "given_name": "Grace"},
	}, store)

	state := env.startLogin(t)
	resp := env.callback(t, state, testutil.ValidCode)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	store.AssertExpectations(t)

	resp = env.get(t, "/api/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me idp.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "grace@example.com", me.Email)
}

func TestMeHandler_RejectsForgedCookie(t *testing.T) {
	env := newTestEnv(t, testutil.FakeProviderConfig{}, storage.NewMemoryStorage())

	req, err := http.NewRequest(http.MethodGet, env.app.URL+"/api/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "eyJhbGciOiJub25lIn0.eyJ1c2VyIjp7ImVtYWlsIjoibUBleGFtcGxlLmNvbSJ9fQ."})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginHandler_RedirectURI(t *testing.T) {
	sessions, err := browserauth.NewSessionManager([]byte("test-secret-key-0123456789"), time.Hour, cookie.Policy{Secure: true}, nil)
	require.NoError(t, err)
	flow := oauth.NewFlowManager("test-client-id", "secret", oauth.Endpoint{
		AuthURL:  "https://accounts.example.com/o/oauth2/auth",
		TokenURL: "https://oauth2.example.com/token",
	}, nil)

	tests := []struct {
		name       string
		configured string
		host       string
		proto      string
		want       string
	}{
		{
			name: "derived from host",
			host: "localhost:5001",
			want: "http://localhost:5001/login/google/callback",
		},
		{
			name:  "behind TLS terminating proxy",
			host:  "auth.example.com",
			proto: "https",
			want:  "https://auth.example.com/login/google/callback",
		},
		{
			name:  "unknown forwarded proto ignored",
			host:  "auth.example.com",
			proto: "gopher",
			want:  "http://auth.example.com/login/google/callback",
		},
		{
			name:       "configured value wins",
			configured: "https://api.example.com/login/google/callback",
			host:       "internal:5001",
			proto:      "http",
			want:       "https://api.example.com/login/google/callback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAuthHandlers(flow, nil, nil, sessions, testFrontendURL, tt.configured)

			req := httptest.NewRequest(http.MethodGet, "/login/google", nil)
			req.Host = tt.host
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			w := httptest.NewRecorder()

			handlers.LoginHandler(w, req)

			require.Equal(t, http.StatusFound, w.Code)
			location, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "accounts.example.com", location.Host)
			assert.Equal(t, tt.want, location.Query().Get("redirect_uri"))
			assert.Equal(t, "offline", location.Query().Get("access_type"))

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, cookie.StateCookie, cookies[0].Name)
			assert.True(t, cookies[0].Secure)
		})
	}
}
