package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/response"
)

// ContextActorKey is the gin context key storing the authenticated actor claims.
const ContextActorKey = "currentActor"

// Identity protects routes by requiring a valid bearer token. Tokens are
// minted by the external identity provider and verified here against the
// shared secret.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, secret)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, claims)
		c.Next()
	}
}

// OptionalIdentity attaches claims when a valid token is present but does not block.
func OptionalIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := bearerClaims(c, secret); err == nil {
			c.Set(ContextActorKey, claims)
		}
		c.Next()
	}
}

func bearerClaims(c *gin.Context, secret string) (*models.ActorClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, appErrors.ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}

	token, err := jwt.ParseWithClaims(parts[1], &models.ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ActorClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
