package middleware

import (
	"context"
	"net/http"
	"strings"

	"statistics-workflow-api/config"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const actorKey = "workflowActor"

type Claims struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ActorLookup resolves a token's user to a workflow actor. *services.UserDirectory implements it.
type ActorLookup interface {
	Lookup(ctx context.Context, userID int) (*services.Actor, error)
}

// AuthMiddleware validates the bearer token and stores the caller's Actor in the context.
// The role always comes from the user directory, never from the token.
func AuthMiddleware(directory ActorLookup, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		actor, err := directory.Lookup(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				abortUnauthorized(c, "User not found")
				return
			}
			config.Log.WithField("user_id", claims.UserID).Errorf("resolve caller: %+v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "PersistenceError",
				"message": "user directory unavailable, please retry",
			})
			return
		}
		actor.IPAddress = c.ClientIP()
		actor.UserAgent = c.Request.UserAgent()

		c.Set(actorKey, *actor)
		c.Set("userID", actor.UserID)
		c.Next()
	}
}

// CurrentActor returns the Actor stored by AuthMiddleware.
func CurrentActor(c *gin.Context) (services.Actor, bool) {
	value, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := value.(services.Actor)
	return actor, ok
}

// SetActor is used by tests and internal callers that authenticate by other means.
func SetActor(c *gin.Context, actor services.Actor) {
	c.Set(actorKey, actor)
}

// RequireRole only lets the given roles through. System Admin is always allowed.
func RequireRole(roles ...services.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "PermissionDenied", "message": "Role not found"})
			return
		}

		allowed := actor.Role == services.RoleAdmin
		for _, role := range roles {
			if actor.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "PermissionDenied", "message": "Insufficient permissions"})
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "Unauthorized",
		"message": message,
	})
}
