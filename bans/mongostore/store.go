package mongostore

import (
	"context"
	"errors"
	"time"

	"matchmaker-relay/bans"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Options struct {
	URI             string
	UsersDB         string
	UsersCollection string
	BansDB          string
	BansCollection  string
	ConnectTimeout  time.Duration
}

// Store keeps one long-lived client for both the account collection and the
// banned-identity collection. Documents are keyed by "email".
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	bans   *mongo.Collection
}

type bannedUser struct {
	Email    string    `bson:"email"`
	BannedAt time.Time `bson:"bannedAt"`
}

// Connect dials MongoDB once. An unreachable server is logged, not fatal: the
// driver keeps reconnecting and each query reports its own failure.
func Connect(ctx context.Context, o Options) (*Store, error) {
	copts := options.Client().ApplyURI(o.URI)
	if o.ConnectTimeout > 0 {
		copts.SetConnectTimeout(o.ConnectTimeout).SetServerSelectionTimeout(o.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, copts)
	if err != nil {
		log.Error().Err(err).Msg("mongostore: failed to create client")
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("mongostore: initial ping failed; continuing")
	} else {
		log.Info().Str("usersDB", o.UsersDB).Str("bansDB", o.BansDB).Msg("mongostore: connected")
	}
	s := New(
		client.Database(o.UsersDB).Collection(o.UsersCollection),
		client.Database(o.BansDB).Collection(o.BansCollection),
	)
	s.client = client
	return s, nil
}

func New(users, bans *mongo.Collection) *Store {
	return &Store{users: users, bans: bans}
}

// EnsureIndexes makes email unique in the ban collection so Put is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.bans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Store) Find(ctx context.Context, identity string) (bool, error) {
	err := s.bans.FindOne(ctx, bson.D{{Key: "email", Value: identity}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Put(ctx context.Context, identity string) (bool, error) {
	_, err := s.bans.InsertOne(ctx, bannedUser{Email: identity, BannedAt: time.Now().UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, identity string) (bool, error) {
	res, err := s.bans.DeleteOne(ctx, bson.D{{Key: "email", Value: identity}})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// SetBanned updates the account's banned flag. An account already in the
// requested state matches but reports zero modified documents.
func (s *Store) SetBanned(ctx context.Context, identity string, banned bool) (bans.AccountUpdate, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "email", Value: identity}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "banned", Value: banned}}}},
	)
	if err != nil {
		return bans.AccountUpdate{}, err
	}
	return bans.AccountUpdate{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
