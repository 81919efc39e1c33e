package scoringcfg

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"renewflow/internal/audit"
)

// DefaultTTL bounds how stale a cached config snapshot may be.
const DefaultTTL = 5 * time.Minute

// Backend is the persistence seam for scoring configuration rows. The
// SQLite state store implements it; tests may substitute a failing or
// in-memory backend.
type Backend interface {
	// LoadConfigRows returns key -> JSON value for every persisted row.
	LoadConfigRows() (map[string]string, error)
	// SaveConfigRow upserts one row and returns the previous JSON value
	// (empty when the key was not set before).
	SaveConfigRow(key, valueJSON, valueType, actor string, now time.Time) (string, error)
}

// Store serves typed scoring configuration with a TTL-bounded cache.
// Reads never fail: if the backend is unreachable the embedded defaults
// are returned. Writes go through the backend, append an audit event,
// and invalidate the cache synchronously.
//
// A Store is constructed once per process and passed by reference; it
// is not a package-level singleton.
type Store struct {
	backend Backend
	auditor *audit.Logger
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	cached   *Config
	cachedAt time.Time
}

// NewStore creates a config store. A zero ttl selects DefaultTTL. The
// auditor may be nil, in which case updates are not audit-logged.
func NewStore(backend Backend, auditor *audit.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		backend: backend,
		auditor: auditor,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Config returns the effective typed configuration. The result is a
// complete snapshot: persisted rows merged over Defaults. Backend
// failures fall back to Defaults without caching, so a recovered
// backend is observed on the next call.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != nil && now.Sub(s.cachedAt) < s.ttl {
		return *s.cached
	}

	rows, err := s.backend.LoadConfigRows()
	if err != nil {
		log.Printf("scoring config unavailable, using defaults: %v", err)
		return Defaults()
	}

	cfg := Defaults()
	for key, raw := range rows {
		if err := cfg.apply(key, []byte(raw)); err != nil {
			log.Printf("skipping bad config row: %v", err)
		}
	}

	s.cached = &cfg
	s.cachedAt = now
	return cfg
}

// Get returns the effective JSON value for one property-group key.
func (s *Store) Get(key string) (json.RawMessage, error) {
	return s.Config().render(key)
}

// GetAll returns the effective JSON value for every property group.
func (s *Store) GetAll() (map[string]json.RawMessage, error) {
	cfg := s.Config()
	out := make(map[string]json.RawMessage, len(Keys()))
	for _, key := range Keys() {
		raw, err := cfg.render(key)
		if err != nil {
			return nil, err
		}
		out[key] = raw
	}
	return out, nil
}

// Invalidate drops the cached snapshot so the next read refetches.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

// Update validates and writes one property group, appends an audit
// event capturing actor and old/new value, and invalidates the cache
// before returning so a write-then-read observes the new value.
func (s *Store) Update(key, valueJSON, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("actor is required")
	}

	scratch := Defaults()
	if err := scratch.apply(key, []byte(valueJSON)); err != nil {
		return err
	}

	prev, err := s.backend.SaveConfigRow(key, valueJSON, valueTypeFor(key), actor, s.now().UTC())
	if err != nil {
		return fmt.Errorf("save config %s: %w", key, err)
	}

	if s.auditor != nil {
		oldValue := prev
		if oldValue == "" {
			if raw, rerr := Defaults().render(key); rerr == nil {
				oldValue = string(raw)
			}
		}
		payload := map[string]any{
			"key":       key,
			"old_value": oldValue,
			"new_value": valueJSON,
			"diff":      renderValueDiff(key, oldValue, valueJSON),
		}
		if err := s.auditor.LogEvent(actor, "config_updated", payload); err != nil {
			fmt.Fprintln(os.Stderr, "audit log failed:", err)
		}
	}

	s.Invalidate()
	return nil
}

func valueTypeFor(key string) string {
	switch key {
	case KeyARRTiers, KeyStrategicPlans:
		return "array"
	case KeyWorkloadPenalty:
		return "number"
	case KeyOpportunityRules, KeyRiskRules:
		return "object"
	default:
		return "map"
	}
}

// renderValueDiff produces a unified diff of the pretty-printed old and
// new JSON values for the audit trail.
func renderValueDiff(key, oldJSON, newJSON string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(indentJSON(oldJSON)),
		B:        difflib.SplitLines(indentJSON(newJSON)),
		FromFile: key + " (old)",
		ToFile:   key + " (new)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func indentJSON(raw string) string {
	if raw == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw + "\n"
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw + "\n"
	}
	return string(pretty) + "\n"
}
