// Package repotest provides in-memory repositories for service tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"upilink/internal/models"
	"upilink/internal/repositories"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transactor runs fn directly. Writes made before an error are not rolled back.
type Transactor struct{}

func (Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func copyMeta(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OrderRepository keeps orders in a map. Its conditional updates are atomic
// under one mutex, mirroring the single-row UPDATE ... WHERE of the SQL store.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	nextID uint

	// FailCreate, when set, is returned by the next Create calls.
	FailCreate []error
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*models.Order)}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Metadata = copyMeta(o.Metadata)
	if o.UTR != nil {
		utr := *o.UTR
		cp.UTR = &utr
	}
	return &cp
}

// Put stores order as is, for test setup.
func (r *OrderRepository) Put(order *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	r.orders[order.OrderID] = cloneOrder(order)
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.FailCreate) > 0 {
		err := r.FailCreate[0]
		r.FailCreate = r.FailCreate[1:]
		return err
	}
	if _, ok := r.orders[order.OrderID]; ok {
		return repositories.ErrDuplicateKey
	}
	r.nextID++
	order.ID = r.nextID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []models.Order
	for _, o := range r.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.CreatedBy != "" && o.CreatedBy != filter.CreatedBy {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, metadata datatypes.JSONMap) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if metadata != nil {
		o.Metadata = copyMeta(metadata)
	}
	return true, nil
}

func (r *OrderRepository) SubmitUTR(ctx context.Context, orderID, utr string, now time.Time, metadata datatypes.JSONMap) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending || o.UTR != nil || !now.Before(o.ExpiresAt) {
		return false, nil
	}
	o.UTR = &utr
	o.Status = models.OrderStatusPendingVerification
	o.Metadata = copyMeta(metadata)
	o.UpdatedAt = now
	return true, nil
}

func (r *OrderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, o := range r.orders {
		if o.Status == models.OrderStatusPending && !now.Before(o.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func inRange(t, since, until time.Time) bool {
	return !t.Before(since) && !t.After(until)
}

func (r *OrderRepository) CountByStatus(ctx context.Context, since, until time.Time) (map[models.OrderStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.OrderStatus]int64)
	for _, o := range r.orders {
		if inRange(o.CreatedAt, since, until) {
			counts[o.Status]++
		}
	}
	return counts, nil
}

func (r *OrderRepository) TopCreators(ctx context.Context, since, until time.Time, limit int) ([]repositories.CreatorStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCreator := make(map[string]*repositories.CreatorStat)
	for _, o := range r.orders {
		if o.Status != models.OrderStatusCompleted || !inRange(o.CreatedAt, since, until) {
			continue
		}
		st, ok := byCreator[o.CreatedBy]
		if !ok {
			st = &repositories.CreatorStat{CreatedBy: o.CreatedBy, CompletedAmount: decimal.Zero}
			byCreator[o.CreatedBy] = st
		}
		st.CompletedOrders++
		st.CompletedAmount = st.CompletedAmount.Add(o.Amount)
	}

	stats := make([]repositories.CreatorStat, 0, len(byCreator))
	for _, st := range byCreator {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CompletedOrders != stats[j].CompletedOrders {
			return stats[i].CompletedOrders > stats[j].CompletedOrders
		}
		return stats[i].CreatedBy < stats[j].CreatedBy
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// AuditRepository keeps entries in append order.
type AuditRepository struct {
	mu      sync.Mutex
	entries []models.AuditLog

	// Err, when set, fails every Append.
	Err error
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.entries = append(r.entries, *entry)
	return nil
}

// Entries returns a copy of everything appended so far.
func (r *AuditRepository) Entries() []models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditLog(nil), r.entries...)
}

// Count returns how many entries have action.
func (r *AuditRepository) Count(action models.AuditAction) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	var matched []models.AuditLog
	for _, e := range r.Entries() {
		if filter.Action != "" && string(e.Action) != filter.Action {
			continue
		}
		if filter.PerformedBy != "" && e.PerformedBy != filter.PerformedBy {
			continue
		}
		if filter.TargetID != "" && e.TargetID != filter.TargetID {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.Timestamp.After(*filter.Until) {
			continue
		}
		matched = append(matched, e)
	}
	// newest first
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	total := int64(len(matched))
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *AuditRepository) CountByAction(ctx context.Context, since, until time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range r.Entries() {
		if inRange(e.Timestamp, since, until) {
			counts[string(e.Action)]++
		}
	}
	return counts, nil
}

func (r *AuditRepository) TopActors(ctx context.Context, since, until time.Time, limit int) ([]repositories.ActorStat, error) {
	byActor := make(map[string]int64)
	for _, e := range r.Entries() {
		if inRange(e.Timestamp, since, until) {
			byActor[e.PerformedBy]++
		}
	}
	stats := make([]repositories.ActorStat, 0, len(byActor))
	for actor, n := range byActor {
		stats = append(stats, repositories.ActorStat{PerformedBy: actor, Actions: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Actions != stats[j].Actions {
			return stats[i].Actions > stats[j].Actions
		}
		return stats[i].PerformedBy < stats[j].PerformedBy
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// SettingsRepository holds the singleton and its history.
type SettingsRepository struct {
	mu       sync.Mutex
	settings *models.SystemSettings
	history  []models.SettingsHistory

	// Gets counts Get calls, for cache assertions.
	Gets int
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

func cloneSettings(s *models.SystemSettings) *models.SystemSettings {
	cp := *s
	if s.StaticUPIID != nil {
		v := *s.StaticUPIID
		cp.StaticUPIID = &v
	}
	apps := models.UPIAppFlags{}
	for k, v := range s.EnabledUPIApps.Data() {
		apps[k] = v
	}
	cp.EnabledUPIApps = datatypes.NewJSONType(apps)
	return &cp
}

func (r *SettingsRepository) Get(ctx context.Context) (*models.SystemSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gets++
	if r.settings == nil {
		r.settings = models.DefaultSettings()
	}
	return cloneSettings(r.settings), nil
}

func (r *SettingsRepository) Save(ctx context.Context, settings *models.SystemSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings.ID = models.SettingsSingletonID
	r.settings = cloneSettings(settings)
	return nil
}

func (r *SettingsRepository) AppendHistory(ctx context.Context, entry *models.SettingsHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *entry)
	return nil
}

func (r *SettingsRepository) History(ctx context.Context, limit, offset int) ([]models.SettingsHistory, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SettingsHistory, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, r.history[i])
	}
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}

// UserRepository keeps users by id.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User

	// Delay, when set, is slept by GetByID while honouring ctx.
	Delay time.Duration
}

func NewUserRepository(users ...*models.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repositories.ErrEmailTaken
		}
	}
	if user.TokenVersion == 0 {
		user.TokenVersion = 1
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Role = role
	u.TokenVersion++
	return nil
}

func (r *UserRepository) IncrementTokenVersion(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.TokenVersion++
	return nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, userID, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	u.LastLoginIP = ip
	return nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

var (
	_ repositories.OrderRepository    = (*OrderRepository)(nil)
	_ repositories.AuditRepository    = (*AuditRepository)(nil)
	_ repositories.SettingsRepository = (*SettingsRepository)(nil)
	_ repositories.UserRepository     = (*UserRepository)(nil)
	_ repositories.Transactor         = Transactor{}
)
