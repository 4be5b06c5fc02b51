package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jak0d/timetiba-sub002/internal/middleware"
	"github.com/jak0d/timetiba-sub002/internal/models"
)

func actorFromContext(c *gin.Context) *models.ActorClaims {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ActorClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorID returns the acting user id, or "" when the request is anonymous.
func actorID(c *gin.Context) string {
	if claims := actorFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
