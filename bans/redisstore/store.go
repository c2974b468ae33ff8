package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "relay:banned:"

// Store is a ban Lookup kept in Redis, one key per banned identity.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func Dial(addr, password string, db int) *Store {
	return New(redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 3 * time.Second,
	}))
}

func key(identity string) string {
	return keyPrefix + identity
}

func (s *Store) Find(ctx context.Context, identity string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(identity)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Put(ctx context.Context, identity string) (bool, error) {
	return s.rdb.SetNX(ctx, key(identity), time.Now().UTC().Format(time.RFC3339), 0).Result()
}

func (s *Store) Delete(ctx context.Context, identity string) (bool, error) {
	n, err := s.rdb.Del(ctx, key(identity)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
