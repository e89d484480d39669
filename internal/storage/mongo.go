package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/throwapin-auth/internal/idp"
	"github.com/dgellow/throwapin-auth/internal/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// connectTimeout bounds the startup ping and index creation
const connectTimeout = 15 * time.Second

// Ensure MongoStorage implements UserStore
var _ UserStore = (*MongoStorage)(nil)

// MongoStorage stores users in a MongoDB collection.
//
// The driver keeps a connection pool that is safe for concurrent use; each
// upsert is a single atomic UpdateOne, so no locking is needed here.
type MongoStorage struct {
	client *mongo.Client
	users  *mongo.Collection
	now    func() time.Time
}

// NewMongoStorage connects to uri, verifies the connection and ensures the
// unique email index exists
func NewMongoStorage(ctx context.Context, uri, database string) (*MongoStorage, error) {
	if uri == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if database == "" {
		return nil, fmt.Errorf("database is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach MongoDB: %w", err)
	}

	s := &MongoStorage{
		client: client,
		users:  client.Database(database).Collection(UsersCollection),
		now:    time.Now,
	}

	if err := s.ensureIndexes(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.LogInfoWithFields("storage", "Connected to MongoDB", map[string]any{
		"database":   database,
		"collection": UsersCollection,
	})
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create email index: %w", err)
	}
	return nil
}

// UpsertUser sets name and auth type on the record matching the email,
// inserting it (with created_at) when absent
func (s *MongoStorage) UpsertUser(ctx context.Context, profile idp.Profile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}

	filter := bson.D{{Key: "email", Value: profile.Email}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email", Value: profile.Email},
			{Key: "name", Value: profile.Name},
			{Key: "auth_type", Value: profile.AuthType},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "created_at", Value: s.now().UTC()},
		}},
	}

	res, err := s.users.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	log.LogDebugWithFields("storage", "User upserted", map[string]any{
		"email":    profile.Email,
		"inserted": res.UpsertedCount > 0,
		"modified": res.ModifiedCount > 0,
	})
	return nil
}

// GetUser returns the user document for email
func (s *MongoStorage) GetUser(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Close disconnects the client and drains the pool
func (s *MongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
