package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the bearer token into the acting user and tenant.
// Requests without a valid token never reach a handler.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		validate, err := utils.JwtValidate(strings.TrimSpace(token))
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.TenantId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.WithActor(c.Request.Context(), claim.TenantId, claim.UserId, claim.UserName, claim.Role)
		ctx = utils.SetTokenInContext(ctx, token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
