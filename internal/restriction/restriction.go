// Package restriction resolves which providers, endpoints, models and wire
// formats a caller may use.
package restriction

import "github.com/modelrelay/modelrelay/internal/models"

// Restrictions is the effective allow set for one caller. Nil lists mean
// unrestricted; empty non-nil lists allow nothing.
type Restrictions struct {
	ProviderIDs models.Uint64List
	EndpointIDs models.Uint64List
	Models      models.StringList
	Formats     models.StringList
}

// Unrestricted reports whether the caller may use everything.
func (r Restrictions) Unrestricted() bool {
	return r.ProviderIDs == nil && r.EndpointIDs == nil && r.Models == nil && r.Formats == nil
}

// Empty reports whether any dimension has an empty allow list, which can
// never match anything.
func (r Restrictions) Empty() bool {
	return (r.ProviderIDs != nil && len(r.ProviderIDs) == 0) ||
		(r.EndpointIDs != nil && len(r.EndpointIDs) == 0) ||
		(r.Models != nil && len(r.Models) == 0) ||
		(r.Formats != nil && len(r.Formats) == 0)
}

// AllowsProvider reports whether the provider is inside the allow set.
func (r Restrictions) AllowsProvider(providerID uint64) bool {
	if r.ProviderIDs == nil {
		return true
	}
	return r.ProviderIDs.Contains(providerID)
}

// AllowsEndpoint reports whether the endpoint is inside the allow set.
func (r Restrictions) AllowsEndpoint(endpointID uint64) bool {
	if r.EndpointIDs == nil {
		return true
	}
	return r.EndpointIDs.Contains(endpointID)
}

// AllowsModel reports whether the canonical model name is inside the allow
// set.
func (r Restrictions) AllowsModel(model string) bool {
	if r.Models == nil {
		return true
	}
	return r.Models.Contains(model)
}

// AllowsFormat reports whether the wire format is inside the allow set.
func (r Restrictions) AllowsFormat(format string) bool {
	if r.Formats == nil {
		return true
	}
	return r.Formats.Contains(format)
}

// Resolve merges API key level and user level restrictions. When both levels
// restrict the same dimension the result is the intersection; when only one
// restricts, its list wins unchanged. Formats exist only at the key level.
func Resolve(apiKey *models.APIKey) Restrictions {
	if apiKey == nil {
		return Restrictions{}
	}
	var userProviders, userEndpoints models.Uint64List
	var userModels models.StringList
	if apiKey.User != nil {
		userProviders = apiKey.User.AllowedProviderIDs
		userEndpoints = apiKey.User.AllowedEndpointIDs
		userModels = apiKey.User.AllowedModels
	}
	return Restrictions{
		ProviderIDs: mergeIDLists(apiKey.AllowedProviderIDs, userProviders),
		EndpointIDs: mergeIDLists(apiKey.AllowedEndpointIDs, userEndpoints),
		Models:      mergeStringLists(apiKey.AllowedModels, userModels),
		Formats:     apiKey.AllowedFormats,
	}
}

// mergeIDLists intersects two allow lists, treating nil as "everything".
func mergeIDLists(a, b models.Uint64List) models.Uint64List {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := make(models.Uint64List, 0, len(a))
	seen := make(map[uint64]struct{}, len(b))
	for _, id := range b {
		seen[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := seen[id]; ok {
			merged = append(merged, id)
		}
	}
	return merged
}

// mergeStringLists intersects two allow lists, treating nil as "everything".
func mergeStringLists(a, b models.StringList) models.StringList {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := make(models.StringList, 0, len(a))
	seen := make(map[string]struct{}, len(b))
	for _, name := range b {
		seen[name] = struct{}{}
	}
	for _, name := range a {
		if _, ok := seen[name]; ok {
			merged = append(merged, name)
		}
	}
	return merged
}
