// Package catalog reads providers, endpoints, keys and model metadata from
// the database for the scheduler and the admin API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/db"
	"github.com/modelrelay/modelrelay/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Store wraps database access for catalog data.
type Store struct {
	conn *gorm.DB
}

// NewStore creates a catalog store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// FindModelByName returns the active global model with the given caller-facing
// name, including its active implementations.
func (s *Store) FindModelByName(ctx context.Context, name string) (*models.GlobalModel, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("catalog: empty model name")
	}
	var model models.GlobalModel
	errFind := s.conn.WithContext(ctx).
		Preload("Implementations", "is_active = ?", true).
		Where("name = ? AND is_active = ?", trimmed, true).
		First(&model).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: find model %q: %w", trimmed, errFind)
	}
	return &model, nil
}

// ProviderPage is one page of providers ordered by scheduling priority.
type ProviderPage struct {
	Providers []models.Provider
	Offset    int
	HasMore   bool
}

// ListActiveProviders returns active providers ordered by priority then ID,
// with active endpoints and keys preloaded. Keys come back ordered by
// internal priority so the builder never re-sorts siblings.
//
// When allowedIDs is non-nil only those providers are considered; the page
// window applies after the filter.
func (s *Store) ListActiveProviders(ctx context.Context, offset, limit int, allowedIDs []uint64) (ProviderPage, error) {
	if limit <= 0 {
		return ProviderPage{}, fmt.Errorf("catalog: invalid page limit %d", limit)
	}
	query := s.conn.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC, id ASC").
		Offset(offset).
		Limit(limit + 1).
		Preload("Endpoints", "is_active = ?", true).
		Preload("Endpoints.Keys", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ?", true).Order("internal_priority ASC, id ASC")
		})
	if allowedIDs != nil {
		query = query.Where("id IN ?", allowedIDs)
	}

	var providers []models.Provider
	if errFind := query.Find(&providers).Error; errFind != nil {
		return ProviderPage{}, fmt.Errorf("catalog: list providers: %w", errFind)
	}

	page := ProviderPage{Offset: offset}
	if len(providers) > limit {
		page.HasMore = true
		providers = providers[:limit]
	}
	page.Providers = providers
	return page, nil
}

// ImplementationsForProviders returns the model's active implementations
// restricted to the given providers, keyed by provider ID.
func (s *Store) ImplementationsForProviders(ctx context.Context, globalModelID uint64, providerIDs []uint64) (map[uint64]models.ModelImplementation, error) {
	if len(providerIDs) == 0 {
		return map[uint64]models.ModelImplementation{}, nil
	}
	var impls []models.ModelImplementation
	errFind := s.conn.WithContext(ctx).
		Where("global_model_id = ? AND provider_id IN ? AND is_active = ?", globalModelID, providerIDs, true).
		Find(&impls).Error
	if errFind != nil {
		return nil, fmt.Errorf("catalog: list implementations: %w", errFind)
	}
	result := make(map[uint64]models.ModelImplementation, len(impls))
	for _, impl := range impls {
		result[impl.ProviderID] = impl
	}
	return result, nil
}

// FindAPIKey returns the active caller credential matching the secret,
// including the owning user.
func (s *Store) FindAPIKey(ctx context.Context, secret string) (*models.APIKey, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrNotFound
	}
	var key models.APIKey
	errFind := s.conn.WithContext(ctx).
		Preload("User").
		Where("key = ? AND is_active = ?", trimmed, true).
		First(&key).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: find api key: %w", errFind)
	}
	if key.User != nil && !key.User.IsActive {
		return nil, ErrNotFound
	}
	return &key, nil
}

// FindProviderKey returns a provider key by ID with its endpoint and provider.
func (s *Store) FindProviderKey(ctx context.Context, id uint64) (*models.ProviderKey, error) {
	var key models.ProviderKey
	errFind := s.conn.WithContext(ctx).
		Preload("Endpoint").
		Preload("Endpoint.Provider").
		Where("id = ?", id).
		First(&key).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: find provider key %d: %w", id, errFind)
	}
	return &key, nil
}

// SearchProviders returns providers whose name matches the search term,
// newest first. Empty search returns everything.
func (s *Store) SearchProviders(ctx context.Context, search string, limit int) ([]models.Provider, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.conn.WithContext(ctx).Order("priority ASC, id ASC").Limit(limit)
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		pattern := db.NormalizeLikePattern(s.conn, "%"+trimmed+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(s.conn, "name"), pattern)
	}
	var providers []models.Provider
	if errFind := query.Find(&providers).Error; errFind != nil {
		return nil, fmt.Errorf("catalog: search providers: %w", errFind)
	}
	return providers, nil
}

// KeysAllowingModel returns active provider keys whose allow list names the
// provider model. Keys with no allow list are unrestricted and excluded here;
// the caller handles that case separately.
func (s *Store) KeysAllowingModel(ctx context.Context, providerModel string) ([]models.ProviderKey, error) {
	var keys []models.ProviderKey
	errFind := s.conn.WithContext(ctx).
		Where("is_active = ?", true).
		Where(db.JSONArrayContainsExpr(s.conn, "allowed_models"), db.JSONArrayContainsString(s.conn, providerModel)).
		Order("internal_priority ASC, id ASC").
		Find(&keys).Error
	if errFind != nil {
		return nil, fmt.Errorf("catalog: keys allowing model: %w", errFind)
	}
	return keys, nil
}

// UpdateLearnedMaxConcurrent persists a cap discovered from upstream
// throttling. A nil value clears the learned cap.
func (s *Store) UpdateLearnedMaxConcurrent(ctx context.Context, keyID uint64, value *int) error {
	result := s.conn.WithContext(ctx).
		Model(&models.ProviderKey{}).
		Where("id = ?", keyID).
		Update("learned_max_concurrent", value)
	if result.Error != nil {
		return fmt.Errorf("catalog: update learned cap for key %d: %w", keyID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
