package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/throwapin-auth/internal/idp"
)

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// UsersCollection is the collection holding one document per user
const UsersCollection = "users"

// User is the persisted user document, keyed by email
type User struct {
	Email     string       `json:"email"      bson:"email"      firestore:"email"`
	Name      string       `json:"name"       bson:"name"       firestore:"name"`
	AuthType  idp.AuthType `json:"auth_type"  bson:"auth_type"  firestore:"auth_type"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at" firestore:"created_at"`
}

// Profile returns the identity fields of the document
func (u User) Profile() idp.Profile {
	return idp.Profile{Email: u.Email, Name: u.Name, AuthType: u.AuthType}
}

// UserStore persists users authenticated through the identity provider.
// Implementations must be safe for concurrent use.
type UserStore interface {
	// UpsertUser inserts the profile or replaces the mutable fields (name,
	// auth type) of the existing record with the same email. Repeating the
	// call with identical input leaves the record unchanged.
	UpsertUser(ctx context.Context, profile idp.Profile) error

	// GetUser returns the record for email or ErrUserNotFound
	GetUser(ctx context.Context, email string) (*User, error)

	// Close releases the underlying connection pool
	Close(ctx context.Context) error
}

func validateProfile(profile idp.Profile) error {
	if profile.Email == "" {
		return errors.New("profile email is required")
	}
	return nil
}
