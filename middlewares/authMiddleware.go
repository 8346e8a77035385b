package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware parses a bearer token when present and stashes the
// staff identity on the request context. Requests without a token pass
// through; route groups that need auth use RequireStaff on top.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := utils.SetStaffIdInContext(c.Request.Context(), claim.ID)
		ctx = utils.SetStaffRoleInContext(ctx, claim.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireStaff rejects requests that did not authenticate as staff.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetStaffIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "staff authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated staff below the given role.
func RequireRole(role models.StaffRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := utils.GetStaffRoleFromContext(c.Request.Context())
		if !ok || !models.StaffRole(current).AtLeast(role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}
