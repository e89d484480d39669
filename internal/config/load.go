package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// rawEnv holds raw env values before post-parse resolution.
// FLASK_SECRET_KEY keeps the name used by existing deployments.
type rawEnv struct {
	Environment     string        `env:"APP_ENV"               envDefault:"production"`
	Port            int           `env:"PORT"                  envDefault:"5001"`
	FrontendURL     string        `env:"FRONTEND_URL"          envDefault:"http://localhost:5173"`
	OutboundTimeout time.Duration `env:"OUTBOUND_HTTP_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"`

	SecretKey    string        `env:"FLASK_SECRET_KEY"`
	SessionTTL   time.Duration `env:"SESSION_TTL"           envDefault:"24h"`
	CookieSecure string        `env:"SESSION_COOKIE_SECURE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
	GoogleAuthURL      string `env:"GOOGLE_AUTH_URL"`
	GoogleTokenURL     string `env:"GOOGLE_TOKEN_URL"`
	GoogleUserInfoURL  string `env:"GOOGLE_USERINFO_URL"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"mongodb"`
	MongoURI       string `env:"MONGODB_URI"`
	MongoDatabase  string `env:"MONGODB_DB_NAME" envDefault:"throwapindb"`

	FirestoreProject     string `env:"GCP_PROJECT_ID"`
	FirestoreDatabase    string `env:"FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestoreCredentials string `env:"FIRESTORE_CREDENTIALS_FILE"`
}

// Load reads the configuration from the process environment and validates it
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads the configuration from the given variables instead of the
// process environment
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	cfg, err := parse(opts)
	if err != nil {
		return Config{}, err
	}

	if result := Validate(cfg); !result.IsValid() {
		return Config{}, fmt.Errorf("config validation failed: %s", result.Errors[0])
	}
	return cfg, nil
}

// parse resolves the environment into a Config without validating it
func parse(opts env.Options) (Config, error) {
	var raw rawEnv
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		Environment:     strings.TrimSpace(raw.Environment),
		Port:            raw.Port,
		FrontendURL:     strings.TrimRight(strings.TrimSpace(raw.FrontendURL), "/"),
		OutboundTimeout: raw.OutboundTimeout,
		LogLevel:        raw.LogLevel,
		LogFormat:       raw.LogFormat,
		Google: GoogleConfig{
			ClientID:     strings.TrimSpace(raw.GoogleClientID),
			ClientSecret: Secret(raw.GoogleClientSecret),
			RedirectURI:  strings.TrimSpace(raw.GoogleRedirectURI),
			AuthURL:      orDefault(raw.GoogleAuthURL, DefaultGoogleAuthURL),
			TokenURL:     orDefault(raw.GoogleTokenURL, DefaultGoogleTokenURL),
			UserInfoURL:  orDefault(raw.GoogleUserInfoURL, DefaultGoogleUserInfoURL),
		},
		Session: SessionConfig{
			SecretKey: Secret(raw.SecretKey),
			TTL:       raw.SessionTTL,
		},
		Storage: StorageBackend(strings.ToLower(strings.TrimSpace(raw.StorageBackend))),
		Mongo: MongoConfig{
			URI:      Secret(strings.TrimSpace(raw.MongoURI)),
			Database: raw.MongoDatabase,
		},
		Firestore: FirestoreConfig{
			ProjectID:       strings.TrimSpace(raw.FirestoreProject),
			Database:        raw.FirestoreDatabase,
			CredentialsFile: raw.FirestoreCredentials,
		},
	}

	cfg.Session.Secure = !cfg.IsDev()
	if v := strings.TrimSpace(raw.CookieSecure); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("SESSION_COOKIE_SECURE must be a boolean: %w", err)
		}
		cfg.Session.Secure = secure
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
