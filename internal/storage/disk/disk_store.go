// Package disk implements the persistent record store: JSON files laid out
// by tenant, year and month under a single data directory, plus the
// write-time metadata used as the reconciliation clock.
package disk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

const (
	tenantsFile      = "clients.json"
	metadataFile     = "metadata.json"
	systemConfigFile = "system_config.json"
	idSequenceFile   = "id_sequence.json"
	companiesDir     = "companies"
	configFile       = "config.json"
)

// idSequence is the persisted tenant ID high-water mark.
type idSequence struct {
	NextTenantID int `json:"nextTenantId"`
}

// Store reads and writes the on-disk data tree. Read failures degrade to
// defaults; write failures propagate because the reconciliation protocol
// depends on durable writes.
type Store struct {
	dataDir string
	clock   util.Clock
	logger  *zap.Logger

	metaMu        sync.RWMutex
	lastWriteTime int64
}

// NewStore creates the data directory if needed and loads the persisted
// write-time metadata. Missing metadata means "no local data" (zero).
func NewStore(dataDir string, clock util.Clock, logger *zap.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
		clock:   clock,
		logger:  logger,
	}

	var meta model.Metadata
	if s.readJSON(filepath.Join(dataDir, metadataFile), &meta) {
		s.lastWriteTime = meta.LastWriteTime
	}

	return s, nil
}

// DataDir returns the root of the local data tree.
func (s *Store) DataDir() string {
	return s.dataDir
}

// LastWriteTime returns the current write-time metadata in Unix milliseconds.
func (s *Store) LastWriteTime() int64 {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.lastWriteTime
}

// Touch advances the write-time metadata to the current clock and persists
// it. Called after every successful mutation.
func (s *Store) Touch() error {
	return s.SetLastWriteTime(s.clock.Now().UnixMilli())
}

// SetLastWriteTime overwrites the write-time metadata and persists it.
// The reconciler uses this to adopt the remote timestamp after a restore.
func (s *Store) SetLastWriteTime(ts int64) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	s.lastWriteTime = ts
	if err := s.writeJSON(filepath.Join(s.dataDir, metadataFile), model.Metadata{LastWriteTime: ts}); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

// LoadTenants returns the tenant list. A missing or unreadable file yields
// an empty list.
func (s *Store) LoadTenants() []*model.Tenant {
	var tenants []*model.Tenant
	if !s.readJSON(filepath.Join(s.dataDir, tenantsFile), &tenants) {
		return []*model.Tenant{}
	}
	if tenants == nil {
		tenants = []*model.Tenant{}
	}
	return tenants
}

// SaveTenants persists the tenant list and advances the write-time metadata.
func (s *Store) SaveTenants(tenants []*model.Tenant) error {
	if err := s.writeJSON(filepath.Join(s.dataDir, tenantsFile), tenants); err != nil {
		return fmt.Errorf("save tenants: %w", err)
	}
	return s.Touch()
}

// LoadNextTenantID returns the persisted tenant ID high-water mark, or zero
// when none has been recorded yet.
func (s *Store) LoadNextTenantID() int {
	var seq idSequence
	s.readJSON(filepath.Join(s.dataDir, idSequenceFile), &seq)
	return seq.NextTenantID
}

// SaveNextTenantID persists the tenant ID high-water mark. IDs below the
// mark are never reissued, even after the tenant that held one is deleted.
func (s *Store) SaveNextTenantID(next int) error {
	if err := s.writeJSON(filepath.Join(s.dataDir, idSequenceFile), idSequence{NextTenantID: next}); err != nil {
		return fmt.Errorf("save id sequence: %w", err)
	}
	return s.Touch()
}

// LoadSystemConfig returns the global settings, defaulting when absent.
func (s *Store) LoadSystemConfig() *model.SystemConfig {
	cfg := model.DefaultSystemConfig()
	s.readJSON(filepath.Join(s.dataDir, systemConfigFile), cfg)
	if cfg.Settings == nil {
		cfg.Settings = map[string]any{}
	}
	return cfg
}

// SaveSystemConfig persists the global settings.
func (s *Store) SaveSystemConfig(cfg *model.SystemConfig) error {
	if err := s.writeJSON(filepath.Join(s.dataDir, systemConfigFile), cfg); err != nil {
		return fmt.Errorf("save system config: %w", err)
	}
	return s.Touch()
}

// LoadTenantConfig returns the tenant's config file, or a fresh default when
// the file is absent or unparseable. First access for a new tenant is not an
// error.
func (s *Store) LoadTenantConfig(tenantID string) *model.TenantConfig {
	cfg := model.DefaultTenantConfig(tenantID)
	s.readJSON(s.tenantConfigPath(tenantID), cfg)
	cfg.TenantID = tenantID
	if cfg.Settings == nil {
		cfg.Settings = map[string]any{}
	}
	return cfg
}

// SaveTenantConfig persists a tenant config, creating directories as needed.
func (s *Store) SaveTenantConfig(cfg *model.TenantConfig) error {
	if err := s.writeJSON(s.tenantConfigPath(cfg.TenantID), cfg); err != nil {
		return fmt.Errorf("save tenant config: %w", err)
	}
	return s.Touch()
}

// LoadShard returns the month shard for (tenant, year, month). A missing or
// corrupt file yields an empty shard.
func (s *Store) LoadShard(tenantID string, year, month int) model.MonthShard {
	shard := model.MonthShard{}
	s.readJSON(s.shardPath(tenantID, year, month), &shard)
	if shard == nil {
		shard = model.MonthShard{}
	}
	return shard
}

// SaveShard persists a month shard and advances the write-time metadata.
func (s *Store) SaveShard(tenantID string, year, month int, shard model.MonthShard) error {
	if err := s.writeJSON(s.shardPath(tenantID, year, month), shard); err != nil {
		return fmt.Errorf("save shard %s %d-%d: %w", tenantID, year, month, err)
	}
	return s.Touch()
}

// DeleteShard removes a month shard file. Missing files are not an error.
func (s *Store) DeleteShard(tenantID string, year, month int) error {
	err := os.Remove(s.shardPath(tenantID, year, month))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete shard %s %d-%d: %w", tenantID, year, month, err)
	}
	return nil
}

// DeleteTenantTree removes the tenant's entire companies/{tenantId}
// subtree: config and every month shard. Missing trees are not an error.
func (s *Store) DeleteTenantTree(tenantID string) error {
	if err := os.RemoveAll(filepath.Join(s.dataDir, companiesDir, tenantID)); err != nil {
		return fmt.Errorf("delete tenant tree %s: %w", tenantID, err)
	}
	return s.Touch()
}

// ListShardPeriods returns every (year, month) with an on-disk shard file
// for the tenant, sorted ascending.
func (s *Store) ListShardPeriods(tenantID string) []model.Period {
	var periods []model.Period

	tenantDir := filepath.Join(s.dataDir, companiesDir, tenantID)
	yearEntries, err := os.ReadDir(tenantDir)
	if err != nil {
		return periods
	}

	for _, yearEntry := range yearEntries {
		if !yearEntry.IsDir() {
			continue
		}
		year, err := strconv.Atoi(yearEntry.Name())
		if err != nil {
			continue
		}
		monthEntries, err := os.ReadDir(filepath.Join(tenantDir, yearEntry.Name()))
		if err != nil {
			continue
		}
		for _, monthEntry := range monthEntries {
			name := monthEntry.Name()
			if monthEntry.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			month, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
			if err != nil || month < 1 || month > 12 {
				continue
			}
			periods = append(periods, model.Period{Year: year, Month: month})
		}
	}

	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})
	return periods
}

// Snapshot walks the entire data tree and returns every JSON file's relative
// path and content, tagged with the current write-time metadata. Read-only;
// unreadable or unparseable files are skipped.
func (s *Store) Snapshot() (*model.Snapshot, error) {
	snap := &model.Snapshot{
		Files:         []model.SnapshotFile{},
		LastWriteTime: s.LastWriteTime(),
	}

	err := filepath.WalkDir(s.dataDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.logger.Warn("snapshot walk error", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("snapshot read failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !json.Valid(content) {
			s.logger.Warn("snapshot skipping malformed file", zap.String("path", path))
			return nil
		}

		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return nil
		}
		snap.Files = append(snap.Files, model.SnapshotFile{
			Path:    filepath.ToSlash(rel),
			Content: json.RawMessage(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot walk: %w", err)
	}
	return snap, nil
}

// RestoreFile writes one file from a remote snapshot into the data tree,
// creating directories and overwriting whatever is present. Paths are
// confined to the data directory.
func (s *Store) RestoreFile(relPath string, content []byte) error {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("restore path escapes data directory: %q", relPath)
	}

	path := filepath.Join(s.dataDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create restore directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write restored file %s: %w", relPath, err)
	}
	return nil
}

// tenantConfigPath returns companies/{tenantId}/config.json.
func (s *Store) tenantConfigPath(tenantID string) string {
	return filepath.Join(s.dataDir, companiesDir, tenantID, configFile)
}

// shardPath returns companies/{tenantId}/{year}/{month}.json.
func (s *Store) shardPath(tenantID string, year, month int) string {
	return filepath.Join(s.dataDir, companiesDir, tenantID, strconv.Itoa(year), strconv.Itoa(month)+".json")
}

// readJSON loads a JSON file into v, reporting whether it was usable.
// Missing and malformed files are treated identically: the caller falls back
// to its default value.
func (s *Store) readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read failed, using default", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("malformed JSON, using default", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

// writeJSON marshals v and writes it, creating parent directories as needed.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
