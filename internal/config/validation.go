package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

// MinSecretKeyLength is the shortest FLASK_SECRET_KEY accepted
const MinSecretKeyLength = 16

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateEnv parses the process environment and reports every problem found,
// without failing on the first one
func ValidateEnv() (*ValidationResult, error) {
	cfg, err := parse(env.Options{})
	if err != nil {
		return nil, err
	}
	return Validate(cfg), nil
}

// Validate checks a resolved configuration
func Validate(cfg Config) *ValidationResult {
	result := &ValidationResult{}

	switch n := len(cfg.Session.SecretKey); {
	case n == 0:
		result.addError("FLASK_SECRET_KEY", "session signing key is required")
	case n < MinSecretKeyLength:
		result.addError("FLASK_SECRET_KEY", "must be at least %d bytes, got %d", MinSecretKeyLength, n)
	}
	if cfg.Session.TTL <= 0 {
		result.addError("SESSION_TTL", "must be positive")
	}
	if !cfg.Session.Secure && !cfg.IsDev() {
		result.addWarning("SESSION_COOKIE_SECURE", "session cookies are not marked Secure outside development")
	}

	if cfg.Google.ClientID == "" {
		result.addError("GOOGLE_CLIENT_ID", "is required")
	}
	if cfg.Google.ClientSecret == "" {
		result.addError("GOOGLE_CLIENT_SECRET", "is required")
	}
	if cfg.Google.RedirectURI != "" {
		validateAbsoluteURL(result, "GOOGLE_REDIRECT_URI", cfg.Google.RedirectURI)
	}
	validateAbsoluteURL(result, "GOOGLE_AUTH_URL", cfg.Google.AuthURL)
	validateAbsoluteURL(result, "GOOGLE_TOKEN_URL", cfg.Google.TokenURL)
	validateAbsoluteURL(result, "GOOGLE_USERINFO_URL", cfg.Google.UserInfoURL)

	validateAbsoluteURL(result, "FRONTEND_URL", cfg.FrontendURL)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		result.addError("PORT", "must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.OutboundTimeout <= 0 {
		result.addError("OUTBOUND_HTTP_TIMEOUT", "must be positive")
	}

	switch cfg.Storage {
	case StorageMongoDB:
		if cfg.Mongo.URI == "" {
			result.addError("MONGODB_URI", "is required for the mongodb storage backend")
		}
		if cfg.Mongo.Database == "" {
			result.addError("MONGODB_DB_NAME", "cannot be empty")
		}
	case StorageFirestore:
		if cfg.Firestore.ProjectID == "" {
			result.addError("GCP_PROJECT_ID", "is required for the firestore storage backend")
		}
	case StorageMemory:
		if !cfg.IsDev() {
			result.addWarning("STORAGE_BACKEND", "memory storage loses users on restart")
		}
	default:
		result.addError("STORAGE_BACKEND", "unknown backend %q (supported: mongodb, firestore, memory)", cfg.Storage)
	}

	return result
}

func validateAbsoluteURL(result *ValidationResult, path, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.addError(path, "must be an absolute URL, got %q", raw)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		result.addError(path, "unsupported scheme %q", u.Scheme)
	}
}
