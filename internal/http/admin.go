package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/settings"
)

// healthHandler answers liveness probes.
type healthHandler struct {
	db *gorm.DB
}

func newHealthHandler(db *gorm.DB) *healthHandler {
	return &healthHandler{db: db}
}

// Healthz pings the database.
func (h *healthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// settingHandler manages the runtime settings rows.
type settingHandler struct {
	db    *gorm.DB
	store *settings.Store
}

func newSettingHandler(db *gorm.DB, store *settings.Store) *settingHandler {
	return &settingHandler{db: db, store: store}
}

// List returns all settings sorted by key.
func (h *settingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{"key": row.Key, "value": row.Value, "updated_at": row.UpdatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns a single setting by key.
func (h *settingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var row models.Setting
	errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get setting failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": row.Key, "value": row.Value, "updated_at": row.UpdatedAt})
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // JSON value payload.
}

// Update upserts the setting and refreshes the snapshot so the change takes
// effect without a restart.
func (h *settingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	dbCtx := h.db.WithContext(c.Request.Context())
	var existing models.Setting
	errFind := dbCtx.Where("key = ?", key).First(&existing).Error
	switch {
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		setting := models.Setting{Key: key, Value: body.Value}
		if errCreate := dbCtx.Create(&setting).Error; errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create setting failed"})
			return
		}
	case errFind != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup setting failed"})
		return
	default:
		if errUpdate := dbCtx.Model(&existing).Update("value", body.Value).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update setting failed"})
			return
		}
	}

	if errRefresh := h.store.Refresh(); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}

// providerHandler exposes read-only provider and key lookups for operators.
type providerHandler struct {
	catalog *catalog.Store
}

func newProviderHandler(store *catalog.Store) *providerHandler {
	return &providerHandler{catalog: store}
}

// Search lists providers matching the name filter.
func (h *providerHandler) Search(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	providers, errSearch := h.catalog.SearchProviders(c.Request.Context(), c.Query("search"), limit)
	if errSearch != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search providers failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// KeysForModel lists keys whose allow list admits the given model.
func (h *providerHandler) KeysForModel(c *gin.Context) {
	model := strings.TrimSpace(c.Query("model"))
	if model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	keys, errFind := h.catalog.KeysAllowingModel(c.Request.Context(), model)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list keys failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// updateLearnedLimitRequest captures the learned concurrency override.
type updateLearnedLimitRequest struct {
	LearnedMaxConcurrent *int `json:"learned_max_concurrent"` // Null clears the learned value.
}

// UpdateLearnedLimit sets or clears a key's learned concurrency limit.
func (h *providerHandler) UpdateLearnedLimit(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateLearnedLimitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.LearnedMaxConcurrent != nil && *body.LearnedMaxConcurrent <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "learned_max_concurrent must be positive"})
		return
	}

	errUpdate := h.catalog.UpdateLearnedMaxConcurrent(c.Request.Context(), id, body.LearnedMaxConcurrent)
	if errors.Is(errUpdate, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	if errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update key failed"})
		return
	}

	key, errFind := h.catalog.FindProviderKey(c.Request.Context(), id)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload key failed"})
		return
	}
	c.JSON(http.StatusOK, key)
}
