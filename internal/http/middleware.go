package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/security"
)

const contextAPIKey = "apiKey"

// bearerToken extracts the Bearer token from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

// callerAuthMiddleware resolves the caller's API key when one is presented.
// Requests without credentials pass through as unrestricted internal
// callers; a presented but unknown key is rejected.
func callerAuthMiddleware(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		apiKey, errFind := store.FindAPIKey(c.Request.Context(), token)
		if errFind != nil {
			if errors.Is(errFind, catalog.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth lookup failed"})
			return
		}
		c.Set(contextAPIKey, apiKey)
		c.Next()
	}
}

// callerFromContext returns the resolved API key, or nil for internal
// callers.
func callerFromContext(c *gin.Context) *models.APIKey {
	value, exists := c.Get(contextAPIKey)
	if !exists {
		return nil
	}
	apiKey, ok := value.(*models.APIKey)
	if !ok {
		return nil
	}
	return apiKey
}

// adminAuthMiddleware validates admin bearer tokens.
func adminAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("adminName", claims.Subject)
		c.Next()
	}
}
