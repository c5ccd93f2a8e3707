// middleware/auth.go

package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/medtrail/consentinel/config"
	logger "github.com/medtrail/consentinel/logging"
)

// AuthClaims are the token claims the service understands. Subject carries
// the actor ID; Role gates the admin surface; OrganizationID is the
// organization the actor acts for and feeds the access guard.
type AuthClaims struct {
	jwt.RegisteredClaims
	Role           string `json:"role,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Authentication verifies the bearer token and stores the actor's identity
// on the request context under actorID, actorRole and actorOrganizationID.
func Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			logger.Warn("No Authorization token provided", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims := &AuthClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.GetString("auth.jwtSecret")), nil
		}, jwt.WithIssuer(config.GetString("auth.issuer")))
		if err != nil || !token.Valid {
			logger.Warn("Rejected token", zap.Error(err), zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		if claims.Subject == "" {
			logger.Warn("Token carries no subject", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set("actorID", claims.Subject)
		c.Set("actorRole", claims.Role)
		c.Set("actorOrganizationID", claims.OrganizationID)

		c.Next()
	}
}

// RequireRole guards a route behind one of the named roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("actorRole")
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		logger.Warn("Actor lacks required role",
			zap.String("actorID", c.GetString("actorID")),
			zap.String("role", role))
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		c.Abort()
	}
}
