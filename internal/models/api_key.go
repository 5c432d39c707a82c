package models

import "time"

// APIKey is a caller credential for the gateway itself. The key carries its
// own restriction lists which intersect with the owning user's lists.
type APIKey struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Key                string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"` // Secret, never serialized
	Name               string     `gorm:"type:varchar(255);not null" json:"name"`
	UserID             uint64     `gorm:"not null;index" json:"user_id"`
	User               *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AllowedProviderIDs Uint64List `gorm:"type:json" json:"allowed_provider_ids,omitempty"` // Nil means all providers
	AllowedEndpointIDs Uint64List `gorm:"type:json" json:"allowed_endpoint_ids,omitempty"` // Nil means all endpoints
	AllowedModels      StringList `gorm:"type:json" json:"allowed_models,omitempty"`       // Nil means all models
	AllowedFormats     StringList `gorm:"type:json" json:"allowed_formats,omitempty"`      // Nil means all wire formats
	IsActive           bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (APIKey) TableName() string { return "api_keys" }
