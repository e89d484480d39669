package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/throwapin-auth/internal/idp"
	"github.com/dgellow/throwapin-auth/internal/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStorage implements UserStore
var _ UserStore = (*FirestoreStorage)(nil)

// FirestoreStorage stores users in a Firestore collection, one document per
// user with the email as document ID
type FirestoreStorage struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreStorage creates a new Firestore storage instance.
// credentialsFile is optional; application default credentials are used when empty.
func NewFirestoreStorage(ctx context.Context, projectID, database, credentialsFile string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": UsersCollection,
	})

	return &FirestoreStorage{
		client:     client,
		collection: UsersCollection,
		now:        time.Now,
	}, nil
}

// UpsertUser updates name and auth type of an existing user or creates it
func (s *FirestoreStorage) UpsertUser(ctx context.Context, profile idp.Profile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}

	ref := s.client.Collection(s.collection).Doc(profile.Email)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if err == nil {
			// User exists, only the mutable fields change
			return tx.Update(ref, []firestore.Update{
				{Path: "name", Value: profile.Name},
				{Path: "auth_type", Value: string(profile.AuthType)},
			})
		}

		if status.Code(err) == codes.NotFound {
			return tx.Create(ref, User{
				Email:     profile.Email,
				Name:      profile.Name,
				AuthType:  profile.AuthType,
				CreatedAt: s.now().UTC(),
			})
		}

		return fmt.Errorf("failed to read user: %w", err)
	})
}

// GetUser returns the user document for email
func (s *FirestoreStorage) GetUser(ctx context.Context, email string) (*User, error) {
	doc, err := s.client.Collection(s.collection).Doc(email).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close(ctx context.Context) error {
	return s.client.Close()
}
