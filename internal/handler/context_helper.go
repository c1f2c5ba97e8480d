package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireActor writes 401 and returns false when the request carries no valid claims.
func requireActor(c *gin.Context) (authz.Actor, bool) {
	actor := authz.FromClaims(claimsFromContext(c))
	if actor.ID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return authz.Actor{}, false
	}
	return actor, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
