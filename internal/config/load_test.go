package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"FLASK_SECRET_KEY":     "0123456789abcdef0123456789abcdef",
		"GOOGLE_CLIENT_ID":     "client-id.apps.googleusercontent.com",
		"GOOGLE_CLIENT_SECRET": "client-secret",
		"MONGODB_URI":          "mongodb://localhost:27017",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, 5001, cfg.Port)
	assert.Equal(t, ":5001", cfg.Addr())
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, StorageMongoDB, cfg.Storage)
	assert.Equal(t, "throwapindb", cfg.Mongo.Database)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10*time.Second, cfg.OutboundTimeout)
	assert.Equal(t, DefaultGoogleAuthURL, cfg.Google.AuthURL)
	assert.Equal(t, DefaultGoogleTokenURL, cfg.Google.TokenURL)
	assert.Equal(t, DefaultGoogleUserInfoURL, cfg.Google.UserInfoURL)
	assert.Empty(t, cfg.Google.RedirectURI)
	assert.False(t, cfg.IsDev())
	assert.True(t, cfg.Session.Secure, "cookies must be Secure outside development")
}

func TestLoadFrom_Overrides(t *testing.T) {
	environ := baseEnv()
	environ["PORT"] = "8080"
	environ["FRONTEND_URL"] = "https://app.example.com/"
	environ["MONGODB_DB_NAME"] = "users_test"
	environ["SESSION_TTL"] = "1h"
	environ["GOOGLE_REDIRECT_URI"] = "https://api.example.com/login/google/callback"

	cfg, err := LoadFrom(environ)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.Equal(t, "users_test", cfg.Mongo.Database)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "https://api.example.com/login/google/callback", cfg.Google.RedirectURI)
}

func TestLoadFrom_CookieSecure(t *testing.T) {
	tests := []struct {
		name   string
		appEnv string
		secure string
		want   bool
	}{
		{name: "production default", appEnv: "", want: true},
		{name: "development default", appEnv: "development", want: false},
		{name: "dev alias", appEnv: "dev", want: false},
		{name: "explicit override in development", appEnv: "development", secure: "true", want: true},
		{name: "explicit opt out", appEnv: "staging", secure: "false", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := baseEnv()
			if tt.appEnv != "" {
				environ["APP_ENV"] = tt.appEnv
			}
			if tt.secure != "" {
				environ["SESSION_COOKIE_SECURE"] = tt.secure
			}

			cfg, err := LoadFrom(environ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Session.Secure)
		})
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	t.Run("non boolean secure flag", func(t *testing.T) {
		environ := baseEnv()
		environ["SESSION_COOKIE_SECURE"] = "maybe"

		_, err := LoadFrom(environ)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SESSION_COOKIE_SECURE")
	})

	t.Run("non numeric port", func(t *testing.T) {
		environ := baseEnv()
		environ["PORT"] = "http"

		_, err := LoadFrom(environ)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse env")
	})

	t.Run("missing secret key", func(t *testing.T) {
		environ := baseEnv()
		delete(environ, "FLASK_SECRET_KEY")

		_, err := LoadFrom(environ)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FLASK_SECRET_KEY")
	})
}
