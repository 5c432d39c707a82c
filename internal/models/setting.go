package models

import (
	"encoding/json"
	"time"
)

// Setting is a single runtime configuration value stored as JSON.
type Setting struct {
	Key       string          `gorm:"primaryKey;type:varchar(128)" json:"key"`
	Value     json.RawMessage `gorm:"type:json;not null" json:"value"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (Setting) TableName() string { return "settings" }
