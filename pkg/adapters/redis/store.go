// Package redis provides Redis-backed adapters: a session store, a
// distributed locker and serial-number pools.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "conductor:"

// noExpiry is the index score of records without a TTL (2100-01-01).
const noExpiry = 4102444800

// Store implements ports.SessionStore using Redis.
//
// Records are JSON strings under <prefix>session:<lot>, transitions are a
// list under <prefix>history:<lot> and a sorted set <prefix>sessions indexes
// the lots, scored by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for session records and their history.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(lot string) string {
	return s.prefix + "session:" + lot
}

func (s *Store) historyKey(lot string) string {
	return s.prefix + "history:" + lot
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

// Save writes the record, appends a transition and indexes the lot in one
// MULTI/EXEC block.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	row, err := json.Marshal(session.Transition())
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	score := float64(noExpiry)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(session.Lot), data, s.ttl)
		pipe.RPush(ctx, s.historyKey(session.Lot), row)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.historyKey(session.Lot), s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.Lot})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the session from Redis.
func (s *Store) Load(ctx context.Context, lot string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(lot)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// History returns the transitions of a lot in insertion order.
func (s *Store) History(ctx context.Context, lot string) ([]domain.Transition, error) {
	rows, err := s.client.LRange(ctx, s.historyKey(lot), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	out := make([]domain.Transition, 0, len(rows))
	for _, row := range rows {
		var t domain.Transition
		if err := json.Unmarshal([]byte(row), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Delete removes the session, its history and its index entry.
func (s *Store) Delete(ctx context.Context, lot string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.key(lot), s.historyKey(lot))
		pipe.ZRem(ctx, s.indexKey(), lot)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns every stored session ordered by lot. Expired index entries
// are pruned lazily.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	lots, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(lots) == 0 {
		return []*domain.Session{}, nil
	}

	keys := make([]string, len(lots))
	for i, lot := range lots {
		keys[i] = s.key(lot)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Expired between ZRANGE and MGET.
			continue
		}
		var session domain.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	slices.SortFunc(sessions, func(a, b *domain.Session) int {
		return cmp.Compare(a.Lot, b.Lot)
	})
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
