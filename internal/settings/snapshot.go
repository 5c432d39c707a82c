package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/models"
)

// Snapshot is an immutable view of the runtime settings table. Readers get a
// consistent set of values without touching the database on the hot path.
type Snapshot struct {
	SiteName              string
	PriorityMode          string
	ProviderBatchSize     int
	FailureThreshold      int
	CooldownSeconds       int
	ReservationProbeRatio float64
	ReservationMinSamples int
	RedisEnabled          bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisPrefix           string
	LoadedAt              time.Time
}

// Cooldown returns the breaker cooldown as a duration.
func (s Snapshot) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// defaultSnapshot returns a snapshot populated with compile-time defaults.
func defaultSnapshot() Snapshot {
	return Snapshot{
		SiteName:              DefaultSiteName,
		PriorityMode:          DefaultPriorityMode,
		ProviderBatchSize:     DefaultProviderBatchSize,
		FailureThreshold:      DefaultFailureThreshold,
		CooldownSeconds:       DefaultCooldownSeconds,
		ReservationProbeRatio: DefaultReservationProbeRatio,
		ReservationMinSamples: DefaultReservationMinSamples,
		RedisPrefix:           DefaultAffinityRedisPrefix,
	}
}

// Store holds the current settings snapshot and refreshes it from the
// database. Zero value is not usable; use NewStore.
type Store struct {
	conn    *gorm.DB
	current atomic.Value // Snapshot
	nowFn   func() time.Time
}

// NewStore creates a settings store seeded with defaults.
func NewStore(conn *gorm.DB) *Store {
	store := &Store{conn: conn, nowFn: time.Now}
	store.current.Store(defaultSnapshot())
	return store
}

// Current returns the latest snapshot. Never nil-valued; defaults apply when
// the database has not been read yet.
func (s *Store) Current() Snapshot {
	snap, _ := s.current.Load().(Snapshot)
	return snap
}

// SetNowFunc overrides the clock, used by tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// Refresh reloads every setting row and swaps in a new snapshot.
func (s *Store) Refresh() error {
	if s.conn == nil {
		return fmt.Errorf("settings: nil connection")
	}
	var rows []models.Setting
	if errFind := s.conn.Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}
	snap := defaultSnapshot()
	snap.LoadedAt = s.nowFn().UTC()
	for _, row := range rows {
		applySetting(&snap, row.Key, row.Value)
	}
	s.current.Store(snap)
	return nil
}

// applySetting folds one settings row into the snapshot. Unknown keys and
// malformed values are ignored so a bad row cannot take the scheduler down.
func applySetting(snap *Snapshot, key string, value json.RawMessage) {
	switch key {
	case SiteNameKey:
		if v, ok := settingString(value); ok && v != "" {
			snap.SiteName = v
		}
	case PriorityModeKey:
		if v, ok := settingString(value); ok {
			if v == PriorityModeProvider || v == PriorityModeGlobalKey {
				snap.PriorityMode = v
			}
		}
	case ProviderBatchSizeKey:
		if v, ok := settingInt(value); ok && v > 0 {
			snap.ProviderBatchSize = v
		}
	case FailureThresholdKey:
		if v, ok := settingInt(value); ok && v > 0 {
			snap.FailureThreshold = v
		}
	case CooldownSecondsKey:
		if v, ok := settingInt(value); ok && v > 0 {
			snap.CooldownSeconds = v
		}
	case ReservationProbeRatioKey:
		if v, ok := settingFloat(value); ok && v > 0 && v < 1 {
			snap.ReservationProbeRatio = v
		}
	case ReservationMinSamplesKey:
		if v, ok := settingInt(value); ok && v > 0 {
			snap.ReservationMinSamples = v
		}
	case AffinityRedisEnabledKey:
		if v, ok := settingBool(value); ok {
			snap.RedisEnabled = v
		}
	case AffinityRedisAddrKey:
		if v, ok := settingString(value); ok {
			snap.RedisAddr = v
		}
	case AffinityRedisPasswordKey:
		if v, ok := settingString(value); ok {
			snap.RedisPassword = v
		}
	case AffinityRedisDBKey:
		if v, ok := settingInt(value); ok && v >= 0 {
			snap.RedisDB = v
		}
	case AffinityRedisPrefixKey:
		if v, ok := settingString(value); ok && v != "" {
			snap.RedisPrefix = v
		}
	}
}

func settingString(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	var v string
	if errUnmarshal := json.Unmarshal(raw, &v); errUnmarshal == nil {
		return strings.TrimSpace(v), true
	}
	// Some rows store bare strings without quotes.
	return trimmed, true
}

func settingInt(raw json.RawMessage) (int, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, false
	}
	var v int
	if errUnmarshal := json.Unmarshal(raw, &v); errUnmarshal == nil {
		return v, true
	}
	var quoted string
	if errUnmarshal := json.Unmarshal(raw, &quoted); errUnmarshal == nil {
		if parsed, errParse := strconv.Atoi(strings.TrimSpace(quoted)); errParse == nil {
			return parsed, true
		}
	}
	return 0, false
}

func settingFloat(raw json.RawMessage) (float64, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, false
	}
	var v float64
	if errUnmarshal := json.Unmarshal(raw, &v); errUnmarshal == nil {
		return v, true
	}
	var quoted string
	if errUnmarshal := json.Unmarshal(raw, &quoted); errUnmarshal == nil {
		if parsed, errParse := strconv.ParseFloat(strings.TrimSpace(quoted), 64); errParse == nil {
			return parsed, true
		}
	}
	return 0, false
}

func settingBool(raw json.RawMessage) (bool, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return false, false
	}
	var v bool
	if errUnmarshal := json.Unmarshal(raw, &v); errUnmarshal == nil {
		return v, true
	}
	var quoted string
	if errUnmarshal := json.Unmarshal(raw, &quoted); errUnmarshal == nil {
		switch strings.ToLower(strings.TrimSpace(quoted)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
	}
	return false, false
}
