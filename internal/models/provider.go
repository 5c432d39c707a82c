package models

import "time"

// Provider is an upstream vendor account that exposes one or more endpoints.
type Provider struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"` // Display name, unique
	Priority  int        `gorm:"not null;default:100;index" json:"priority"`         // Lower value is tried earlier
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	Endpoints []Endpoint `gorm:"foreignKey:ProviderID" json:"endpoints,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (Provider) TableName() string { return "providers" }

// Endpoint is a concrete URL of a provider speaking one wire format.
type Endpoint struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderID    uint64        `gorm:"not null;index" json:"provider_id"`
	Provider      *Provider     `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Name          string        `gorm:"type:varchar(255);not null" json:"name"`
	Format        string        `gorm:"type:varchar(32);not null;index" json:"format"` // Wire format, e.g. openai, anthropic, gemini
	BaseURL       string        `gorm:"type:text;not null" json:"base_url"`
	MaxConcurrent *int          `json:"max_concurrent,omitempty"` // Endpoint-wide cap, nil means unlimited
	IsActive      bool          `gorm:"not null;default:true;index" json:"is_active"`
	Keys          []ProviderKey `gorm:"foreignKey:EndpointID" json:"keys,omitempty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (Endpoint) TableName() string { return "endpoints" }
