package calendar

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// DefaultStateTTL bounds how long a consent round trip may take.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrStateInvalid is returned for malformed, forged or foreign state values.
	ErrStateInvalid = errors.New("calendar: invalid oauth state")
	// ErrStateExpired is returned when the state outlived its TTL.
	ErrStateExpired = errors.New("calendar: oauth state expired")
	// ErrStateReplayed is returned when a state is presented a second time.
	ErrStateReplayed = errors.New("calendar: oauth state already used")
)

// ReplayStore remembers consumed state nonces until they expire.
type ReplayStore interface {
	// MarkUsed records key and reports whether it was unused before.
	MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StateSigner issues OAuth state values of the form nonce.expiry.mac, where the blake2b MAC also
// covers the subject the state was issued to. It implements application.StateGuard.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	store  ReplayStore
}

// NewStateSigner returns a signer keyed with secret. Keys longer than 64 bytes are rejected by blake2b.
func NewStateSigner(secret []byte, store ReplayStore, ttl time.Duration) (*StateSigner, error) {
	if len(secret) == 0 || len(secret) > blake2b.Size {
		return nil, fmt.Errorf("calendar: state secret must be 1-%d bytes", blake2b.Size)
	}
	if store == nil {
		store = NewMemoryReplayStore()
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: append([]byte(nil), secret...), ttl: ttl, store: store}, nil
}

// Issue returns a fresh state bound to subject.
func (s *StateSigner) Issue(ctx context.Context, subject string, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("calendar: generate state nonce: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(nonce) + "." + strconv.FormatInt(now.Add(s.ttl).Unix(), 10)
	mac, err := s.sign(subject, payload)
	if err != nil {
		return "", err
	}
	return payload + "." + mac, nil
}

// Consume verifies state for subject and marks it used.
func (s *StateSigner) Consume(ctx context.Context, state, subject string, now time.Time) error {
	parts := strings.Split(state, ".")
	if len(parts) != 3 {
		return ErrStateInvalid
	}
	payload := parts[0] + "." + parts[1]
	want, err := s.sign(subject, payload)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(parts[2])) != 1 {
		return ErrStateInvalid
	}

	expiresUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ErrStateInvalid
	}
	expires := time.Unix(expiresUnix, 0)
	if !now.Before(expires) {
		return ErrStateExpired
	}

	fresh, err := s.store.MarkUsed(ctx, parts[0], expires.Sub(now))
	if err != nil {
		return fmt.Errorf("calendar: record state use: %w", err)
	}
	if !fresh {
		return ErrStateReplayed
	}
	return nil
}

func (s *StateSigner) sign(subject, payload string) (string, error) {
	h, err := blake2b.New256(s.secret)
	if err != nil {
		return "", fmt.Errorf("calendar: init mac: %w", err)
	}
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// MemoryReplayStore keeps used nonces in process memory.
type MemoryReplayStore struct {
	mu      sync.Mutex
	used    map[string]time.Time
	nowFunc func() time.Time
}

// NewMemoryReplayStore returns an empty in-process replay store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{used: make(map[string]time.Time), nowFunc: time.Now}
}

// MarkUsed implements ReplayStore.
func (m *MemoryReplayStore) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	for k, expires := range m.used {
		if !now.Before(expires) {
			delete(m.used, k)
		}
	}
	if _, seen := m.used[key]; seen {
		return false, nil
	}
	m.used[key] = now.Add(ttl)
	return true, nil
}

// RedisReplayStore shares used nonces across replicas through SETNX.
type RedisReplayStore struct {
	client *redis.Client
	prefix string
}

// NewRedisReplayStore parses redisURL, pings the server and returns a store.
func NewRedisReplayStore(ctx context.Context, redisURL string) (*RedisReplayStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisReplayStoreWithClient(client), nil
}

// NewRedisReplayStoreWithClient wraps an existing client.
func NewRedisReplayStoreWithClient(client *redis.Client) *RedisReplayStore {
	return &RedisReplayStore{client: client, prefix: "coordinator:oauth-state:"}
}

// MarkUsed implements ReplayStore.
func (r *RedisReplayStore) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
}

// Close releases the Redis connection.
func (r *RedisReplayStore) Close() error {
	return r.client.Close()
}
