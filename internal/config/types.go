package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageBackend selects where user records are persisted
type StorageBackend string

const (
	StorageMongoDB   StorageBackend = "mongodb"
	StorageFirestore StorageBackend = "firestore"
	StorageMemory    StorageBackend = "memory"
)

// Google's OAuth endpoints. The token and auth URLs match golang.org/x/oauth2/google.Endpoint.
const (
	DefaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	DefaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	DefaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleConfig holds the OAuth client registration for Google
type GoogleConfig struct {
	ClientID     string
	ClientSecret Secret
	// RedirectURI is optional; when empty the callback URL is derived from the request.
	RedirectURI string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// MongoConfig configures the MongoDB user store
type MongoConfig struct {
	URI      Secret
	Database string
}

// FirestoreConfig configures the Firestore user store
type FirestoreConfig struct {
	ProjectID       string
	Database        string
	CredentialsFile string
}

// SessionConfig controls the browser session cookie
type SessionConfig struct {
	SecretKey Secret
	TTL       time.Duration
	// Secure is resolved at load time: explicit SESSION_COOKIE_SECURE wins, otherwise
	// true everywhere except development.
	Secure bool
}

// Config is the immutable process configuration, built once at startup
type Config struct {
	Environment     string
	Port            int
	FrontendURL     string
	OutboundTimeout time.Duration
	LogLevel        string
	LogFormat       string

	Google    GoogleConfig
	Session   SessionConfig
	Storage   StorageBackend
	Mongo     MongoConfig
	Firestore FirestoreConfig
}

// IsDev reports whether the process runs in local development, where
// security requirements can be relaxed
func (c Config) IsDev() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev"
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
