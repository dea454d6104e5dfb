// Package idempotency deduplicates retried mutating requests keyed by a
// client-supplied idempotency key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State describes what the store knows about a fingerprint.
type State int

const (
	// StateNew means the fingerprint was unseen; the caller holds the
	// processing marker and must run the handler.
	StateNew State = iota
	// StateProcessing means another request with the same fingerprint is
	// still executing.
	StateProcessing
	// StateCompleted means a stored response is available for replay.
	StateCompleted
)

// Record is a stored response for replay.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Store is the pluggable persistence surface. Begin must be atomic: of two
// concurrent calls for an unseen fingerprint exactly one observes StateNew.
type Store interface {
	Begin(ctx context.Context, fingerprint string) (State, *Record, error)
	Complete(ctx context.Context, fingerprint string, rec Record) error
	// Forget drops the processing marker so a failed request can be retried
	// without waiting out the marker TTL.
	Forget(ctx context.Context, fingerprint string) error
}

const processingMarker = "processing"

// RedisStore keeps idempotency state in redis.
type RedisStore struct {
	client        *redis.Client
	processingTTL time.Duration
	responseTTL   time.Duration
}

// NewRedisStore constructs RedisStore. Zero TTLs fall back to 60s for the
// processing marker and 24h for stored responses.
func NewRedisStore(client *redis.Client, processingTTL, responseTTL time.Duration) *RedisStore {
	if processingTTL <= 0 {
		processingTTL = 60 * time.Second
	}
	if responseTTL <= 0 {
		responseTTL = 24 * time.Hour
	}
	return &RedisStore{client: client, processingTTL: processingTTL, responseTTL: responseTTL}
}

func redisKey(fingerprint string) string { return "idempotency:" + fingerprint }

func (s *RedisStore) Begin(ctx context.Context, fingerprint string) (State, *Record, error) {
	key := redisKey(fingerprint)
	acquired, err := s.client.SetNX(ctx, key, processingMarker, s.processingTTL).Result()
	if err != nil {
		return 0, nil, err
	}
	if acquired {
		return StateNew, nil, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Marker expired between SetNX and Get; treat as still processing,
		// the client retries shortly.
		return StateProcessing, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	if val == processingMarker {
		return StateProcessing, nil, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return 0, nil, err
	}
	return StateCompleted, &rec, nil
}

func (s *RedisStore) Complete(ctx context.Context, fingerprint string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(fingerprint), payload, s.responseTTL).Err()
}

func (s *RedisStore) Forget(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, redisKey(fingerprint)).Err()
}

type memoryEntry struct {
	record    *Record
	expiresAt time.Time
}

// MemoryStore is the in-process Store, for single-node deployments and
// tests. Expired entries are dropped lazily on access and by a sweep ticker.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]memoryEntry
	processingTTL time.Duration
	responseTTL   time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore constructs MemoryStore and starts its sweep loop.
func NewMemoryStore(processingTTL, responseTTL time.Duration) *MemoryStore {
	if processingTTL <= 0 {
		processingTTL = 60 * time.Second
	}
	if responseTTL <= 0 {
		responseTTL = 24 * time.Hour
	}
	s := &MemoryStore{
		entries:       make(map[string]memoryEntry),
		processingTTL: processingTTL,
		responseTTL:   responseTTL,
		stop:          make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the sweep loop.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) Begin(_ context.Context, fingerprint string) (State, *Record, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fingerprint]
	if ok && now.After(entry.expiresAt) {
		delete(s.entries, fingerprint)
		ok = false
	}
	if ok {
		if entry.record == nil {
			return StateProcessing, nil, nil
		}
		return StateCompleted, entry.record, nil
	}
	s.entries[fingerprint] = memoryEntry{expiresAt: now.Add(s.processingTTL)}
	return StateNew, nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, fingerprint string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = memoryEntry{record: &rec, expiresAt: time.Now().Add(s.responseTTL)}
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}
