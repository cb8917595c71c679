package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"upilink/internal/models"

	"github.com/redis/go-redis/v9"
)

// SessionStore holds tracked sessions keyed by session id.
type SessionStore interface {
	// Put creates or replaces a session. ttl bounds how long a backend may
	// keep an untouched record; zero keeps it until deleted.
	Put(ctx context.Context, s *models.Session, ttl time.Duration) error
	// Touch replaces a session only if it is still stored and reports
	// whether it was. A session deleted concurrently stays deleted.
	Touch(ctx context.Context, s *models.Session, ttl time.Duration) (bool, error)
	// Get returns nil and no error when the session is absent.
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, sessionIDs ...string) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	ListAll(ctx context.Context) ([]models.Session, error)
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Session)}
}

func (m *MemorySessionStore) Put(ctx context.Context, s *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	m.sessions[s.SessionID] = *s
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Touch(ctx context.Context, s *models.Session, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; !ok {
		return false, nil
	}
	m.sessions[s.SessionID] = *s
	return true, nil
}

func (m *MemorySessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, sessionIDs ...string) error {
	m.mu.Lock()
	for _, id := range sessionIDs {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemorySessionStore) ListAll(ctx context.Context) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

// RedisSessionStore keeps each session as a JSON value with a TTL and
// indexes ids per user and globally in sets. Index entries whose value
// expired are dropped on read.
type RedisSessionStore struct {
	client *redis.Client
}

const (
	sessionAllKey = "session:all"
)

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string         { return "session:id:" + id }
func sessionUserKey(userID string) string { return "session:user:" + userID }

func (r *RedisSessionStore) Put(ctx context.Context, s *models.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.SessionID), data, ttl)
	pipe.SAdd(ctx, sessionUserKey(s.UserID), s.SessionID)
	pipe.SAdd(ctx, sessionAllKey, s.SessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// Touch uses SET XX, so a key removed by Delete is not recreated.
func (r *RedisSessionStore) Touch(ctx context.Context, s *models.Session, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	return r.client.SetXX(ctx, sessionKey(s.SessionID), data, ttl).Result()
}

func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, id := range sessionIDs {
		s, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if s != nil {
			pipe.SRem(ctx, sessionUserKey(s.UserID), id)
		}
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, sessionAllKey, id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	ids, err := r.client.SMembers(ctx, sessionUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, sessionUserKey(userID), ids)
}

func (r *RedisSessionStore) ListAll(ctx context.Context) ([]models.Session, error) {
	ids, err := r.client.SMembers(ctx, sessionAllKey).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, sessionAllKey, ids)
}

func (r *RedisSessionStore) load(ctx context.Context, indexKey string, ids []string) ([]models.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var (
		out   []models.Session
		stale []interface{}
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s models.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, indexKey, stale...)
	}
	return out, nil
}
