// Package store persists authenticated sessions and the local job ledger.
// Every store has an in-memory implementation and a networked one: Redis for
// sessions, MySQL through gorm for jobs.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("not found")

// DefaultSessionPrefix namespaces session keys in Redis.
const DefaultSessionPrefix = "okto:session:"

// SessionRecord is the persisted form of a session: the bearer token and the
// session private key needed to sign with it.
type SessionRecord struct {
	AuthToken      string    `json:"auth_token"`
	SessionPrivKey string    `json:"session_priv_key"`
	UserSWA        string    `json:"user_swa"`
	Nonce          string    `json:"nonce,omitempty"`
	ClientSWA      string    `json:"client_swa,omitempty"`
	SessionExpiry  int64     `json:"session_expiry,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type SessionStore interface {
	// Put stores rec under id; it disappears after ttl.
	Put(ctx context.Context, id string, rec *SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

type memorySession struct {
	rec      SessionRecord
	deadline time.Time
}

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Put(_ context.Context, id string, rec *SessionRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{rec: *rec, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(entry.deadline) {
		s.mu.Lock()
		// A Put may have replaced the entry since the read lock was released.
		if cur, ok := s.sessions[id]; ok && !s.now().Before(cur.deadline) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// RedisSessionStore keeps sessions as JSON strings with a Redis TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisSessionStore) Put(ctx context.Context, id string, rec *SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// OpenRedis parses a redis:// URL and checks the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
