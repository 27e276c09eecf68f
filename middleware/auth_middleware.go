package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"groupdrive/models"
	"groupdrive/services"
	"groupdrive/utils"
)

const identityKey = "identity"

// AuthMiddleware verifies the bearer token and stores the caller's identity
// on the context. A token without a group claim is completed from the users
// collection.
func AuthMiddleware(verifier utils.TokenVerifier, membership *services.MembershipService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		identity := models.Identity{UID: claims.Subject, IsAdmin: claims.Admin}
		if claims.GroupID != "" {
			g := claims.GroupID
			identity.GroupID = &g
		}

		if membership != nil {
			identity, err = membership.Resolve(c.Request.Context(), identity)
			if err != nil {
				utils.LogError("failed to resolve group membership", err, zap.String("user_id", claims.Subject))
				utils.ServiceUnavailableResponse(c, "Membership lookup failed")
				c.Abort()
				return
			}
		}

		c.Set(identityKey, identity)
		c.Set("userId", identity.UID)
		c.Next()
	}
}

// GetIdentity returns the identity stored by AuthMiddleware. Without it the
// zero identity is returned, which services reject as unauthenticated.
func GetIdentity(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}

func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityKey, identity)
	c.Set("userId", identity.UID)
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// RequireAdmin rejects callers whose token carries no admin claim.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).IsAdmin {
			utils.ForbiddenResponse(c, "Insufficient privileges", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
