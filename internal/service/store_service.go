// Package service implements the tiered attendance store: hot reads from
// the local record store, cold reads through the archive client, startup
// reconciliation and retention sweeping.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tempusgeo/TempusGeo-Server/internal/client"
	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/storage/disk"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors surfaced to the HTTP boundary.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAction      = errors.New("invalid clock action")
)

// firstTenantID is where auto-assigned tenant IDs start.
const firstTenantID = 1001

// StoreService is the facade the HTTP layer talks to. Mutations within one
// tenant are serialized by a per-tenant mutex, preserving the "no concurrent
// mutation within a shard" guarantee under Go's threaded runtime.
type StoreService struct {
	disk    *disk.Store
	cache   *CacheService
	archive *client.ArchiveClient
	clock   util.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	tenantsMu sync.RWMutex
	tenants   []*model.Tenant

	locks sync.Map // tenantID -> *sync.Mutex
}

// NewStoreService creates the store facade.
func NewStoreService(
	diskStore *disk.Store,
	cache *CacheService,
	archive *client.ArchiveClient,
	clock util.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StoreService {
	return &StoreService{
		disk:    diskStore,
		cache:   cache,
		archive: archive,
		clock:   clock,
		logger:  logger,
		metrics: m,
		tenants: []*model.Tenant{},
	}
}

// Warmup loads the tenant list and every tenant's config into the cache.
// Runs after reconciliation, before the server starts serving.
func (s *StoreService) Warmup() {
	s.tenantsMu.Lock()
	s.tenants = s.disk.LoadTenants()
	tenants := s.tenants
	s.tenantsMu.Unlock()

	for _, tenant := range tenants {
		s.cache.PutConfig(s.disk.LoadTenantConfig(tenant.ID))
	}

	s.logger.Info("store warmed up", zap.Int("tenants", len(tenants)))
}

// lockTenant returns the mutex serializing mutations for one tenant.
func (s *StoreService) lockTenant(tenantID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// IsHot reports whether (year, month) falls in the hot window: the current
// calendar month or the immediately preceding one.
func (s *StoreService) IsHot(year, month int) bool {
	now := model.PeriodOf(s.clock.Now())
	p := model.Period{Year: year, Month: month}
	return p == now || p == now.Previous()
}

// Read routes a shard read by tier: hot periods come from the local store,
// everything older from the archive. Routing never writes.
func (s *StoreService) Read(ctx context.Context, tenantID string, year, month int) model.MonthShard {
	if s.IsHot(year, month) {
		return s.GetShard(tenantID, year, month)
	}
	return s.archive.FetchPeriod(ctx, tenantID, year, month)
}

// GetShard returns the shard for (tenant, year, month), cache-first. A
// missing file yields an empty shard.
func (s *StoreService) GetShard(tenantID string, year, month int) model.MonthShard {
	mu := s.lockTenant(tenantID)
	mu.Lock()
	defer mu.Unlock()
	return s.getShardLocked(tenantID, year, month)
}

// getShardLocked is GetShard with the tenant mutex already held.
func (s *StoreService) getShardLocked(tenantID string, year, month int) model.MonthShard {
	key := ShardKey(tenantID, year, month)
	if shard, ok := s.cache.GetShard(key); ok {
		s.recordCache("shard", true)
		return shard
	}
	s.recordCache("shard", false)

	shard := s.disk.LoadShard(tenantID, year, month)
	s.cache.PutShard(key, shard)
	return shard
}

// SaveShard persists a shard to disk, then mirrors it into the cache. The
// disk write happens first so the cache never holds state that is not
// durable.
func (s *StoreService) SaveShard(tenantID string, year, month int, shard model.MonthShard) error {
	mu := s.lockTenant(tenantID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveShardLocked(tenantID, year, month, shard)
}

// saveShardLocked is SaveShard with the tenant mutex already held.
func (s *StoreService) saveShardLocked(tenantID string, year, month int, shard model.MonthShard) error {
	if err := s.disk.SaveShard(tenantID, year, month, shard); err != nil {
		return err
	}
	s.cache.PutShard(ShardKey(tenantID, year, month), shard)
	s.publishLastWrite()
	return nil
}

// AppendShift records a clock punch. IN appends a new open entry. OUT
// closes the employee's open entry when one exists; otherwise a closed
// entry with a nil start is appended, so corrections are never rejected
// just because the matching IN punch is missing.
func (s *StoreService) AppendShift(tenantID, employee string, action model.ClockAction, ts time.Time, location, note string) error {
	if !action.Valid() {
		return ErrInvalidAction
	}

	mu := s.lockTenant(tenantID)
	mu.Lock()
	defer mu.Unlock()

	period := model.PeriodOf(ts)
	// Clone before mutating: readers may still be iterating the cached map.
	shard := s.getShardLocked(tenantID, period.Year, period.Month).Clone()

	entries := shard[employee]
	switch action {
	case model.ActionIn:
		start := ts
		entries = append(entries, model.ShiftEntry{Start: &start, Location: location, Note: note})
	case model.ActionOut:
		end := ts
		if n := len(entries); n > 0 && entries[n-1].Open() {
			entries[n-1].End = &end
			if location != "" {
				entries[n-1].Location = location
			}
			if note != "" {
				entries[n-1].Note = note
			}
		} else {
			entries = append(entries, model.ShiftEntry{End: &end, Location: location, Note: note})
		}
	}
	shard[employee] = entries

	if err := s.saveShardLocked(tenantID, period.Year, period.Month, shard); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordClockEvent(string(action))
	}
	return nil
}

// EmployeeStatus returns the employee's current clock state, derived from
// the current month's shard.
func (s *StoreService) EmployeeStatus(tenantID, employee string) model.EmployeeStatus {
	period := model.PeriodOf(s.clock.Now())
	shard := s.GetShard(tenantID, period.Year, period.Month)

	entries := shard[employee]
	if n := len(entries); n > 0 && entries[n-1].Open() {
		return model.EmployeeStatus{State: string(model.ActionIn), StartTime: entries[n-1].Start}
	}
	return model.EmployeeStatus{State: string(model.ActionOut)}
}

// LoadTenantConfig returns the tenant's config, cache-first, defaulting on
// first access.
func (s *StoreService) LoadTenantConfig(tenantID string) *model.TenantConfig {
	if cfg, ok := s.cache.GetConfig(tenantID); ok {
		s.recordCache("config", true)
		return cfg
	}
	s.recordCache("config", false)

	cfg := s.disk.LoadTenantConfig(tenantID)
	s.cache.PutConfig(cfg)
	return cfg
}

// UpdateTenantConfig merges the given settings into the tenant's config and
// persists it before the cache is updated.
func (s *StoreService) UpdateTenantConfig(tenantID string, settings map[string]any) (*model.TenantConfig, error) {
	mu := s.lockTenant(tenantID)
	mu.Lock()
	defer mu.Unlock()

	cfg := s.disk.LoadTenantConfig(tenantID)
	for k, v := range settings {
		cfg.Settings[k] = v
	}
	if err := s.disk.SaveTenantConfig(cfg); err != nil {
		return nil, err
	}
	s.cache.PutConfig(cfg)
	s.publishLastWrite()
	return cfg, nil
}

// SystemConfig returns the deployment-wide settings.
func (s *StoreService) SystemConfig() *model.SystemConfig {
	return s.disk.LoadSystemConfig()
}

// UpdateSystemConfig merges the given settings into the deployment-wide
// config and persists it.
func (s *StoreService) UpdateSystemConfig(settings map[string]any) (*model.SystemConfig, error) {
	cfg := s.disk.LoadSystemConfig()
	for k, v := range settings {
		cfg.Settings[k] = v
	}
	if err := s.disk.SaveSystemConfig(cfg); err != nil {
		return nil, err
	}
	s.publishLastWrite()
	return cfg, nil
}

// Snapshot returns the full local tree for the archival service to pull.
// Read-only; bypasses the cache entirely.
func (s *StoreService) Snapshot() (*model.Snapshot, error) {
	return s.disk.Snapshot()
}

// RegisterTenant creates a tenant with an auto-assigned numeric-string ID,
// a bcrypt-hashed secret and a 30 day trial subscription.
func (s *StoreService) RegisterTenant(name, email, secret string) (*model.Tenant, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	s.tenantsMu.Lock()
	defer s.tenantsMu.Unlock()

	// IDs come from a persisted high-water mark so a deleted tenant's ID is
	// never reissued to a new business; the live scan covers trees predating
	// the sequence file.
	next := firstTenantID
	if persisted := s.disk.LoadNextTenantID(); persisted > next {
		next = persisted
	}
	for _, t := range s.tenants {
		if id, err := strconv.Atoi(t.ID); err == nil && id >= next {
			next = id + 1
		}
	}

	tenant := &model.Tenant{
		ID:                 strconv.Itoa(next),
		Name:               name,
		Email:              email,
		SecretHash:         string(hash),
		SubscriptionExpiry: s.clock.Now().AddDate(0, 0, 30),
		Payments:           []model.PaymentRecord{},
	}

	s.tenants = append(s.tenants, tenant)
	if err := s.disk.SaveTenants(s.tenants); err != nil {
		s.tenants = s.tenants[:len(s.tenants)-1]
		return nil, err
	}
	if err := s.disk.SaveNextTenantID(next + 1); err != nil {
		return nil, err
	}
	s.publishLastWrite()

	s.logger.Info("tenant registered", zap.String("tenant_id", tenant.ID), zap.String("name", name))
	return tenant.Clone(), nil
}

// Authenticate checks a tenant's secret.
func (s *StoreService) Authenticate(tenantID, secret string) (*model.Tenant, error) {
	tenant, err := s.FindTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(tenant.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}
	return tenant, nil
}

// ChangeSecret replaces a tenant's secret after verifying the old one.
func (s *StoreService) ChangeSecret(tenantID, oldSecret, newSecret string) error {
	if _, err := s.Authenticate(tenantID, oldSecret); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newSecret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	return s.mutateTenant(tenantID, func(t *model.Tenant) {
		t.SecretHash = string(hash)
	})
}

// ExtendSubscription appends a payment record and pushes the subscription
// expiry forward by the paid number of months, starting from the later of
// now and the current expiry.
func (s *StoreService) ExtendSubscription(tenantID string, months int, amount float64) (*model.Tenant, error) {
	if months <= 0 {
		return nil, fmt.Errorf("months must be positive")
	}

	var updated *model.Tenant
	err := s.mutateTenant(tenantID, func(t *model.Tenant) {
		base := t.SubscriptionExpiry
		if now := s.clock.Now(); base.Before(now) {
			base = now
		}
		t.SubscriptionExpiry = base.AddDate(0, months, 0)
		t.Payments = append(t.Payments, model.PaymentRecord{
			ID:     uuid.New().String(),
			Amount: amount,
			Months: months,
			PaidAt: s.clock.Now(),
		})
		updated = t.Clone()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AdminAdjust applies a super-admin edit to a tenant's profile fields. Nil
// or empty fields are left untouched.
func (s *StoreService) AdminAdjust(tenantID string, name, email string, expiry *time.Time) (*model.Tenant, error) {
	var updated *model.Tenant
	err := s.mutateTenant(tenantID, func(t *model.Tenant) {
		if name != "" {
			t.Name = name
		}
		if email != "" {
			t.Email = email
		}
		if expiry != nil {
			t.SubscriptionExpiry = *expiry
		}
		updated = t.Clone()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTenant removes a tenant from the collection, removes its on-disk
// companies/{id} subtree and drops its cached state. The subtree must go
// with the tenant: orphaned shards would leak into every later Snapshot,
// and the sweeper only visits live tenants. Archived history stays with the
// archival service.
func (s *StoreService) DeleteTenant(tenantID string) error {
	s.tenantsMu.Lock()
	defer s.tenantsMu.Unlock()

	idx := -1
	for i, t := range s.tenants {
		if t.ID == tenantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrTenantNotFound
	}

	periods := s.disk.ListShardPeriods(tenantID)

	removed := s.tenants[idx]
	s.tenants = append(s.tenants[:idx], s.tenants[idx+1:]...)
	if err := s.disk.SaveTenants(s.tenants); err != nil {
		return err
	}
	if err := s.disk.DeleteTenantTree(tenantID); err != nil {
		return err
	}
	s.publishLastWrite()

	s.cache.InvalidateTenant(tenantID)
	for _, p := range periods {
		s.cache.InvalidateShard(ShardKey(tenantID, p.Year, p.Month))
	}

	s.logger.Info("tenant deleted", zap.String("tenant_id", removed.ID))
	return nil
}

// ListTenants returns a deep copy of the tenant list. Copies keep callers
// from reading registry structs that a concurrent mutation is writing.
func (s *StoreService) ListTenants() []*model.Tenant {
	s.tenantsMu.RLock()
	defer s.tenantsMu.RUnlock()
	out := make([]*model.Tenant, len(s.tenants))
	for i, t := range s.tenants {
		out[i] = t.Clone()
	}
	return out
}

// FindTenant returns a deep copy of the tenant with the given ID.
func (s *StoreService) FindTenant(tenantID string) (*model.Tenant, error) {
	s.tenantsMu.RLock()
	defer s.tenantsMu.RUnlock()
	for _, t := range s.tenants {
		if t.ID == tenantID {
			return t.Clone(), nil
		}
	}
	return nil, ErrTenantNotFound
}

// mutateTenant applies fn to the tenant and persists the collection.
func (s *StoreService) mutateTenant(tenantID string, fn func(*model.Tenant)) error {
	s.tenantsMu.Lock()
	defer s.tenantsMu.Unlock()

	for _, t := range s.tenants {
		if t.ID == tenantID {
			fn(t)
			if err := s.disk.SaveTenants(s.tenants); err != nil {
				return err
			}
			s.publishLastWrite()
			return nil
		}
	}
	return ErrTenantNotFound
}

// recordCache publishes a cache hit or miss.
func (s *StoreService) recordCache(kind string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(kind)
	} else {
		s.metrics.RecordCacheMiss(kind)
	}
}

// publishLastWrite mirrors the write-time metadata into the metrics gauge.
func (s *StoreService) publishLastWrite() {
	if s.metrics != nil {
		s.metrics.SetLastWriteTime(s.disk.LastWriteTime())
	}
}
