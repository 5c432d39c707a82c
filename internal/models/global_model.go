package models

import "time"

// GlobalModel is the caller-facing model name, independent of any provider.
type GlobalModel struct {
	ID                    uint64                `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                  string                `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"` // Name callers request
	DisplayName           string                `gorm:"type:varchar(255)" json:"display_name,omitempty"`
	SupportedCapabilities StringList            `gorm:"type:json" json:"supported_capabilities,omitempty"` // Capabilities the model can have at all
	SupportsStreaming     bool                  `gorm:"not null;default:true" json:"supports_streaming"`
	IsActive              bool                  `gorm:"not null;default:true;index" json:"is_active"`
	Implementations       []ModelImplementation `gorm:"foreignKey:GlobalModelID" json:"implementations,omitempty"`
	CreatedAt             time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (GlobalModel) TableName() string { return "global_models" }

// SupportsCapability reports whether the global model can carry the
// capability on any provider. A nil list admits everything.
func (m *GlobalModel) SupportsCapability(capability string) bool {
	if m.SupportedCapabilities == nil {
		return true
	}
	return m.SupportedCapabilities.Contains(capability)
}

// ModelImplementation binds a global model to the concrete model name a
// provider uses for it.
type ModelImplementation struct {
	ID                uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	GlobalModelID     uint64       `gorm:"not null;index:idx_impl_model_provider" json:"global_model_id"`
	GlobalModel       *GlobalModel `gorm:"foreignKey:GlobalModelID" json:"global_model,omitempty"`
	ProviderID        uint64       `gorm:"not null;index:idx_impl_model_provider" json:"provider_id"`
	Provider          *Provider    `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	ProviderModelName string       `gorm:"type:varchar(255);not null" json:"provider_model_name"` // Name sent upstream
	SupportsStreaming *bool        `json:"supports_streaming,omitempty"`                          // Nil inherits the global model default
	IsActive          bool         `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (ModelImplementation) TableName() string { return "model_implementations" }

// EffectiveSupportsStreaming resolves the streaming flag, falling back to the
// global model default when the implementation does not override it.
func (i *ModelImplementation) EffectiveSupportsStreaming(global *GlobalModel) bool {
	if i.SupportsStreaming != nil {
		return *i.SupportsStreaming
	}
	if global != nil {
		return global.SupportsStreaming
	}
	return true
}
