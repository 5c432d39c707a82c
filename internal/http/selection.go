package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/scheduler"
)

// selectionHandler drives the scheduler for the request-execution layer.
type selectionHandler struct {
	catalog   *catalog.Store
	scheduler *scheduler.Scheduler
}

func newSelectionHandler(store *catalog.Store, sched *scheduler.Scheduler) *selectionHandler {
	return &selectionHandler{catalog: store, scheduler: sched}
}

// selectRequest is the JSON body of POST /v1/select.
type selectRequest struct {
	Model             string   `json:"model"`
	Format            string   `json:"format,omitempty"`
	Stream            bool     `json:"stream,omitempty"`
	Capabilities      []string `json:"capabilities,omitempty"`
	CallerID          string   `json:"caller_id,omitempty"` // Overrides the API-key-derived affinity key.
	ExcludedEndpoints []uint64 `json:"excluded_endpoints,omitempty"`
	ExcludedKeys      []uint64 `json:"excluded_keys,omitempty"`
}

// statusError is implemented by scheduler errors that map onto an HTTP
// response.
type statusError interface {
	error
	StatusCode() int
	Headers() map[string]string
}

// writeSchedulerError renders typed scheduler errors with their status and
// headers, and everything else as a 500.
func writeSchedulerError(c *gin.Context, err error) {
	var typed statusError
	if errors.As(err, &typed) {
		for name, value := range typed.Headers() {
			c.Header(name, value)
		}
		c.JSON(typed.StatusCode(), gin.H{"error": typed.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "selection failed"})
}

// Select picks a (provider, endpoint, key) combination and reserves its
// concurrency slots. The caller must POST /v1/release when done.
func (h *selectionHandler) Select(c *gin.Context) {
	var body selectRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}

	apiKey := callerFromContext(c)
	affinityKey := body.CallerID
	if affinityKey == "" && apiKey != nil {
		affinityKey = fmt.Sprintf("api-key-%d", apiKey.ID)
	}

	selection, errSelect := h.scheduler.Select(c.Request.Context(), scheduler.Request{
		AffinityKey:       affinityKey,
		Format:            body.Format,
		Model:             body.Model,
		Stream:            body.Stream,
		Capabilities:      body.Capabilities,
		ExcludedEndpoints: body.ExcludedEndpoints,
		ExcludedKeys:      body.ExcludedKeys,
		APIKey:            apiKey,
	})
	if errSelect != nil {
		writeSchedulerError(c, errSelect)
		return
	}

	// The upstream credential is returned on purpose; this API only faces
	// the internal request-execution layer.
	c.JSON(http.StatusOK, gin.H{
		"provider": gin.H{
			"id":   selection.Provider.ID,
			"name": selection.Provider.Name,
		},
		"endpoint": gin.H{
			"id":       selection.Endpoint.ID,
			"name":     selection.Endpoint.Name,
			"format":   selection.Endpoint.Format,
			"base_url": selection.Endpoint.BaseURL,
		},
		"key": gin.H{
			"id":      selection.Key.ID,
			"api_key": selection.Key.APIKey,
		},
		"provider_model_name": selection.Impl.ProviderModelName,
		"affine":              selection.Affine,
		"concurrency":         selection.Snapshot.Describe(),
	})
}

// releaseRequest is the JSON body of POST /v1/release.
type releaseRequest struct {
	EndpointID uint64 `json:"endpoint_id"`
	KeyID      uint64 `json:"key_id"`
	CallerID   string `json:"caller_id,omitempty"`
	Format     string `json:"format,omitempty"` // Same format the select call used.
	Model      string `json:"model,omitempty"`
	Success    bool   `json:"success"`
}

// Release frees the slots taken by Select and reports the outcome.
func (h *selectionHandler) Release(c *gin.Context) {
	var body releaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.EndpointID == 0 || body.KeyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint_id and key_id are required"})
		return
	}

	affinityKey := body.CallerID
	if affinityKey == "" {
		if apiKey := callerFromContext(c); apiKey != nil {
			affinityKey = fmt.Sprintf("api-key-%d", apiKey.ID)
		}
	}

	h.scheduler.Release(c.Request.Context(), scheduler.ReleaseInput{
		EndpointID:  body.EndpointID,
		KeyID:       body.KeyID,
		AffinityKey: affinityKey,
		Format:      body.Format,
		Model:       body.Model,
		Success:     body.Success,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats returns the scheduler, reservation, concurrency and health counters.
func (h *selectionHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Stats(c.Request.Context()))
}
