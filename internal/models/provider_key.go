package models

import "time"

// ProviderKey is a single credential attached to an endpoint.
type ProviderKey struct {
	ID                    uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	EndpointID            uint64        `gorm:"not null;index" json:"endpoint_id"`
	Endpoint              *Endpoint     `gorm:"foreignKey:EndpointID" json:"endpoint,omitempty"`
	Name                  string        `gorm:"type:varchar(255);not null" json:"name"`
	APIKey                string        `gorm:"type:text;not null" json:"-"`                       // Secret, never serialized
	InternalPriority      int           `gorm:"not null;default:100" json:"internal_priority"`     // Order among sibling keys, lower first
	GlobalPriority        *int          `gorm:"index" json:"global_priority,omitempty"`            // Cross-provider rank for global_key mode, nil sorts last
	MaxConcurrent         *int          `json:"max_concurrent,omitempty"`                          // Operator-fixed cap, nil means use learned
	LearnedMaxConcurrent  *int          `json:"learned_max_concurrent,omitempty"`                  // Cap discovered from upstream throttling
	AllowedModels         StringList    `gorm:"type:json" json:"allowed_models,omitempty"`         // Nil means all models
	Capabilities          CapabilityMap `gorm:"type:json" json:"capabilities,omitempty"`           // Per-capability support flags
	ExclusiveCapabilities StringList    `gorm:"type:json" json:"exclusive_capabilities,omitempty"` // Key is held back for these capabilities only
	CacheTTLMinutes       int           `gorm:"not null;default:0" json:"cache_ttl_minutes"`       // Upstream prompt cache lifetime, 0 disables affinity
	IsActive              bool          `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt             time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName customizes the table name used by GORM.
func (ProviderKey) TableName() string { return "provider_keys" }

// EffectiveMaxConcurrent returns the concurrency cap that applies to the key.
// A fixed cap always wins over a learned one; nil means unlimited.
func (k *ProviderKey) EffectiveMaxConcurrent() *int {
	if k.MaxConcurrent != nil {
		return k.MaxConcurrent
	}
	return k.LearnedMaxConcurrent
}

// SupportsModel reports whether the key may serve the given provider model
// name. A nil allow list admits every model.
func (k *ProviderKey) SupportsModel(providerModel string) bool {
	if k.AllowedModels == nil {
		return true
	}
	return k.AllowedModels.Contains(providerModel)
}

// SupportsCapability reports whether the key advertises the capability.
// Unknown capabilities default to unsupported.
func (k *ProviderKey) SupportsCapability(capability string) bool {
	if k.Capabilities == nil {
		return false
	}
	return k.Capabilities[capability]
}
