package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/models"
	internalsettings "github.com/modelrelay/modelrelay/internal/settings"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// schemaModels lists every entity in AutoMigrate order. Parents come before
// children so foreign keys resolve.
func schemaModels() []any {
	return []any{
		&models.Provider{},
		&models.Endpoint{},
		&models.ProviderKey{},
		&models.GlobalModel{},
		&models.ModelImplementation{},
		&models.User{},
		&models.APIKey{},
		&models.Setting{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	_ = conn.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_endpoints_provider_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoints_provider_active
				ON endpoints (provider_id)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_provider_keys_endpoint_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_provider_keys_endpoint_active
				ON provider_keys (endpoint_id, internal_priority)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_model_implementations_model_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_model_implementations_model_active
				ON model_implementations (global_model_id, provider_id)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_providers_priority_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_providers_priority_active
				ON providers (priority ASC, id ASC)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
		{
			name: "idx_api_keys_user_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_api_keys_user_id
				ON api_keys (user_id)
				WHERE is_active = true
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	// trgmIndex defines trigram and fallback index statements.
	type trgmIndex struct {
		name     string // Logical index name.
		trgmSQL  string // Trigram index SQL.
		lowerSQL string // Lowercase fallback index SQL.
	}
	trgmIndexes := []trgmIndex{
		{
			name: "idx_providers_name",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_providers_name_trgm
				ON providers USING gin (LOWER(name) gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_providers_name_lower
				ON providers (LOWER(name))
			`,
		},
		{
			name: "idx_global_models_name",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_global_models_name_trgm
				ON global_models USING gin (LOWER(name) gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_global_models_name_lower
				ON global_models (LOWER(name))
			`,
		},
		{
			name: "idx_provider_keys_name",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_provider_keys_name_trgm
				ON provider_keys USING gin (LOWER(name) gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_provider_keys_name_lower
				ON provider_keys (LOWER(name))
			`,
		},
	}
	for _, item := range trgmIndexes {
		if errIdx := conn.Exec(item.trgmSQL).Error; errIdx != nil {
			if errLower := conn.Exec(item.lowerSQL).Error; errLower != nil {
				return fmt.Errorf("db: create index %s: %w", item.name, errLower)
			}
		}
	}

	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_endpoints_provider_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoints_provider_active
				ON endpoints (provider_id)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_provider_keys_endpoint_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_provider_keys_endpoint_active
				ON provider_keys (endpoint_id, internal_priority)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_model_implementations_model_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_model_implementations_model_active
				ON model_implementations (global_model_id, provider_id)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_providers_priority_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_providers_priority_active
				ON providers (priority ASC, id ASC)
				WHERE is_active = true
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
		{
			name: "idx_api_keys_user_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_api_keys_user_id
				ON api_keys (user_id)
				WHERE is_active = true
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureDefaultSettings seeds scheduler settings that must always exist.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errEnsure := ensureStringSetting(conn, internalsettings.PriorityModeKey, internalsettings.DefaultPriorityMode); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureIntSetting(conn, internalsettings.ProviderBatchSizeKey, internalsettings.DefaultProviderBatchSize); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureIntSetting(conn, internalsettings.FailureThresholdKey, internalsettings.DefaultFailureThreshold); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureIntSetting(conn, internalsettings.CooldownSecondsKey, internalsettings.DefaultCooldownSeconds); errEnsure != nil {
		return errEnsure
	}
	return nil
}

// ensureStringSetting ensures a string setting exists and defaults when empty.
func ensureStringSetting(conn *gorm.DB, key, value string) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, json.RawMessage(payload))
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, json.RawMessage(payload))
}

func ensureRawSetting(conn *gorm.DB, key string, rawValue json.RawMessage) error {
	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
