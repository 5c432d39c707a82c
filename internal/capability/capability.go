// Package capability decides whether models and keys can serve a request's
// required features.
package capability

import "github.com/modelrelay/modelrelay/internal/models"

// Common capability names used across providers.
const (
	Tools     = "tools"
	Vision    = "vision"
	Thinking  = "thinking"
	JSONMode  = "json_mode"
	WebSearch = "web_search"
)

// MissingForModel returns the required capabilities the global model cannot
// carry on any provider. A non-empty result means no candidate can serve the
// request at all.
func MissingForModel(model *models.GlobalModel, required []string) []string {
	if model == nil {
		return append([]string(nil), required...)
	}
	var missing []string
	for _, cap := range required {
		if !model.SupportsCapability(cap) {
			missing = append(missing, cap)
		}
	}
	return missing
}

// MissingForKey returns the required capabilities the key does not advertise.
func MissingForKey(key *models.ProviderKey, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	if key == nil {
		return append([]string(nil), required...)
	}
	var missing []string
	for _, cap := range required {
		if !key.SupportsCapability(cap) {
			missing = append(missing, cap)
		}
	}
	return missing
}

// WastedForKey returns the key's exclusive capabilities when the request
// asks for none of them. Such a key is held back so plain traffic cannot
// occupy slots a capability-bound request will need. A request needing at
// least one exclusive capability may use the key.
func WastedForKey(key *models.ProviderKey, required []string) []string {
	if key == nil || len(key.ExclusiveCapabilities) == 0 {
		return nil
	}
	for _, cap := range required {
		if key.ExclusiveCapabilities.Contains(cap) {
			return nil
		}
	}
	return append([]string(nil), key.ExclusiveCapabilities...)
}

// SupportsStreaming resolves the streaming flag for one implementation.
func SupportsStreaming(impl *models.ModelImplementation, model *models.GlobalModel) bool {
	if impl == nil {
		if model != nil {
			return model.SupportsStreaming
		}
		return true
	}
	return impl.EffectiveSupportsStreaming(model)
}
