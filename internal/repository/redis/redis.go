package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
)

// Config describes the Redis backend. KeyPrefix plays the role of a table
// name; ConsistentReads controls whether batch reads may be served by the
// replica.
type Config struct {
	Addr            string
	Password        string
	DB              int
	ReplicaAddr     string
	KeyPrefix       string
	ConsistentReads bool
}

// Store implements repository.AccountStore on Redis. Every account is one
// JSON value under one key, so each operation inherits Redis' per-command
// atomicity. Nothing here spans keys transactionally.
type Store struct {
	primary    *goredis.Client
	replica    *goredis.Client
	prefix     string
	consistent bool
}

var _ repository.AccountStore = (*Store)(nil)

// New connects to Redis and verifies the primary is reachable.
func New(cfg Config) (*Store, error) {
	primary := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := primary.Ping(ctx).Err(); err != nil {
		primary.Close()
		return nil, fmt.Errorf("ping redis primary: %w", err)
	}
	s := &Store{primary: primary, prefix: cfg.KeyPrefix, consistent: cfg.ConsistentReads}
	if cfg.ReplicaAddr != "" {
		s.replica = goredis.NewClient(&goredis.Options{Addr: cfg.ReplicaAddr, Password: cfg.Password, DB: cfg.DB})
	}
	return s, nil
}

func (s *Store) key(username string) string {
	return s.prefix + "account:" + username
}

// Get reads a single account from the primary.
func (s *Store) Get(ctx context.Context, username string) (*domain.Account, error) {
	raw, err := s.primary.Get(ctx, s.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var account domain.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode account %q: %w", username, err)
	}
	return &account, nil
}

// Put writes the account under its username key.
func (s *Store) Put(ctx context.Context, account *domain.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %q: %w", account.Username, err)
	}
	if err := s.primary.Set(ctx, s.key(account.Username), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the account key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, username string) error {
	if err := s.primary.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// BatchGet fetches several accounts at once via MGET, omitting missing keys.
// When consistent reads are not required and a replica is configured, the
// read is routed to the replica.
func (s *Store) BatchGet(ctx context.Context, usernames []string) ([]domain.Account, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	client := s.primary
	if !s.consistent && s.replica != nil {
		client = s.replica
	}
	keys := make([]string, len(usernames))
	for i, username := range usernames {
		keys[i] = s.key(username)
	}
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	accounts := make([]domain.Account, 0, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for %q", value, usernames[i])
		}
		var account domain.Account
		if err := json.Unmarshal([]byte(text), &account); err != nil {
			return nil, fmt.Errorf("decode account %q: %w", usernames[i], err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Ping verifies the primary connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx).Err()
}

// Close releases both connections.
func (s *Store) Close() {
	_ = s.primary.Close()
	if s.replica != nil {
		_ = s.replica.Close()
	}
}
