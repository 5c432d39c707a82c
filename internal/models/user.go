package models

import "time"

// User is an account that owns API keys. Restriction lists on the user apply
// to every key the user owns and intersect with per-key lists.
type User struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username           string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Email              string     `gorm:"type:varchar(255)" json:"email,omitempty"`
	AllowedProviderIDs Uint64List `gorm:"type:json" json:"allowed_provider_ids,omitempty"` // Nil means all providers
	AllowedEndpointIDs Uint64List `gorm:"type:json" json:"allowed_endpoint_ids,omitempty"` // Nil means all endpoints
	AllowedModels      StringList `gorm:"type:json" json:"allowed_models,omitempty"`       // Nil means all models
	IsActive           bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (User) TableName() string { return "users" }
