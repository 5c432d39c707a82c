// Package scheduler picks the provider, endpoint and key that serve each
// request, preferring combinations with a warm upstream cache.
package scheduler

import "github.com/modelrelay/modelrelay/internal/models"

// Candidate is one (provider, endpoint, key) combination considered for a
// request. Unusable combinations stay in the list with a skip reason so
// exhaustion errors can explain what was rejected and why.
type Candidate struct {
	Provider *models.Provider
	Endpoint *models.Endpoint
	Key      *models.ProviderKey
	Impl     *models.ModelImplementation

	// Affine marks the combination remembered from the caller's last
	// request. Affine candidates get the key's full concurrency budget.
	Affine bool

	// SkipReason is non-empty when the combination cannot be used.
	SkipReason string
}

// Usable reports whether the candidate may be selected.
func (c *Candidate) Usable() bool {
	return c.SkipReason == ""
}

// Matches reports whether the candidate is the given triple.
func (c *Candidate) Matches(providerID, endpointID, keyID uint64) bool {
	return c.Provider.ID == providerID && c.Endpoint.ID == endpointID && c.Key.ID == keyID
}
