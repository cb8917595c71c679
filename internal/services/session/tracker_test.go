package session

import (
	"context"
	"sync"
	"testing"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) OrderTransition(from, to string) { m.Called(from, to) }
func (m *MockMetrics) RateLimitDenied(limiter string)  { m.Called(limiter) }
func (m *MockMetrics) CSRFRejected()                   { m.Called() }
func (m *MockMetrics) SessionEnded(reason string)      { m.Called(reason) }
func (m *MockMetrics) AuditWriteFailed(action string)  { m.Called(action) }

var meta = models.RequestMeta{IPAddress: "198.51.100.1", UserAgent: "test-agent"}

func newTracker(cfg Config) (*Tracker, *cache.MemorySessionStore, *testClock) {
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewMemorySessionStore()
	return NewTrackerWithClock(store, cfg, nil, clock.Now), store, clock
}

func TestTracker_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	tr, _, clock := newTracker(Config{IdleTimeout: 30 * time.Minute, MaxPerUser: 5})

	s, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)

	clock.Advance(10 * time.Minute)
	res, err := tr.Validate(ctx, s.SessionID, meta)
	require.NoError(t, err)
	assert.False(t, res.IPChanged)
	assert.Equal(t, clock.Now(), res.Session.LastActivity)

	// Activity was refreshed, so another 25 minutes stays inside the timeout.
	clock.Advance(25 * time.Minute)
	_, err = tr.Validate(ctx, s.SessionID, meta)
	assert.NoError(t, err)
}

func TestTracker_ValidateUnknownSession(t *testing.T) {
	tr, _, _ := newTracker(Config{})
	_, err := tr.Validate(context.Background(), "missing", meta)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
}

// removingStore deletes a session right after it is read, as a concurrent
// logout or eviction would between Validate's read and its refresh.
type removingStore struct {
	*cache.MemorySessionStore
}

func (s removingStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	got, err := s.MemorySessionStore.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.MemorySessionStore.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	return got, nil
}

func TestTracker_ValidateDoesNotResurrectRemovedSession(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := removingStore{cache.NewMemorySessionStore()}
	tr := NewTrackerWithClock(store, Config{IdleTimeout: 30 * time.Minute, MaxPerUser: 5}, nil, clock.Now)

	s, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)

	_, err = tr.Validate(ctx, s.SessionID, meta)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	got, err := store.MemorySessionStore.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got, "removed session stays removed")
}

func TestTracker_EvictedSessionStaysInvalid(t *testing.T) {
	ctx := context.Background()
	tr, _, clock := newTracker(Config{IdleTimeout: 30 * time.Minute, MaxPerUser: 1})

	first, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)

	_, err = tr.Validate(ctx, first.SessionID, meta)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	sessions, err := tr.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestTracker_IdleSessionExpires(t *testing.T) {
	ctx := context.Background()
	tr, store, clock := newTracker(Config{IdleTimeout: 30 * time.Minute})

	s, err := tr.Create(ctx, "u1", models.RoleViewer, meta)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = tr.Validate(ctx, s.SessionID, meta)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	got, err := store.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got, "expired session is removed")
}

func TestTracker_IPChangeIsFlaggedNotBlocked(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(Config{})

	s, err := tr.Create(ctx, "u1", models.RoleAdmin, meta)
	require.NoError(t, err)

	res, err := tr.Validate(ctx, s.SessionID, models.RequestMeta{IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.True(t, res.IPChanged)
	assert.Equal(t, "198.51.100.1", res.PreviousIP)
	assert.Equal(t, "203.0.113.9", res.Session.IPAddress)
}

func TestTracker_EvictsLeastRecentlyActiveBeyondCap(t *testing.T) {
	ctx := context.Background()
	tr, _, clock := newTracker(Config{IdleTimeout: time.Hour, MaxPerUser: 2})

	first, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	// Touch the first session so the second becomes least recently active.
	_, err = tr.Validate(ctx, first.SessionID, meta)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	third, err := tr.Create(ctx, "u1", models.RoleMerchant, meta)
	require.NoError(t, err)

	sessions, err := tr.ListForUser(ctx, "u1")
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.SessionID] = true
	}
	assert.Len(t, ids, 2)
	assert.True(t, ids[first.SessionID])
	assert.True(t, ids[third.SessionID])
	assert.False(t, ids[second.SessionID])
}

func TestTracker_RemoveAllForUser(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(Config{})

	_, _ = tr.Create(ctx, "u1", models.RoleMerchant, meta)
	_, _ = tr.Create(ctx, "u1", models.RoleMerchant, meta)
	other, _ := tr.Create(ctx, "u2", models.RoleMerchant, meta)

	ids, err := tr.RemoveAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	left, err := tr.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = tr.Validate(ctx, other.SessionID, meta)
	assert.NoError(t, err)
}

func TestTracker_Sweep(t *testing.T) {
	ctx := context.Background()
	m := new(MockMetrics)
	m.On("SessionEnded", ReasonIdle).Return().Once()

	clock := &testClock{now: time.Now()}
	tr := NewTrackerWithClock(cache.NewMemorySessionStore(), Config{IdleTimeout: time.Minute}, m, clock.Now)

	stale, _ := tr.Create(ctx, "u1", models.RoleViewer, meta)
	clock.Advance(2 * time.Minute)
	fresh, _ := tr.Create(ctx, "u2", models.RoleViewer, meta)

	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = tr.Validate(ctx, stale.SessionID, meta)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
	_, err = tr.Validate(ctx, fresh.SessionID, meta)
	assert.NoError(t, err)

	m.AssertExpectations(t)
}
