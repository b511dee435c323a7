package deletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Espresso-Aficionados/sprobot/apperr"
)

// SessionStore keeps sessions for ttl after each save.
type SessionStore interface {
	Save(ctx context.Context, session Session, ttl time.Duration) error
	// Load fails with an apperr NotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (Session, error)
}

func errSessionNotFound() error {
	return apperr.NotFound("This deletion request has expired or does not exist.")
}

// MemoryStore keeps sessions in process and drops them lazily once their
// retention has passed.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session Session
	until   time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, session Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[session.ID] = memoryEntry{session: session, until: now.Add(ttl)}
	for id, entry := range s.sessions {
		if !now.Before(entry.until) {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return Session{}, errSessionNotFound()
	}
	if !s.now().Before(entry.until) {
		delete(s.sessions, id)
		return Session{}, errSessionNotFound()
	}
	return entry.session, nil
}

const (
	redisKeyPrefix   = "sprobot:deletion:"
	redisCallTimeout = 2 * time.Second
)

// RedisStore keeps sessions as JSON strings whose redis TTL is the
// retention.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= redisCallTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, redisCallTimeout)
}

func (s *RedisStore) Save(ctx context.Context, session Session, ttl time.Duration) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("deletion: encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+session.ID, data, ttl).Err(); err != nil {
		return apperr.Storage("Unable to store the deletion request.", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, errSessionNotFound()
	}
	if err != nil {
		return Session{}, apperr.Storage("Unable to load the deletion request.", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("deletion: decode session: %w", err)
	}
	return session, nil
}
