package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
	"github.com/noah-isme/wellness-analytics-api/pkg/response"
)

var errOutsideSchool = appErrors.Clone(appErrors.ErrForbidden, "school outside of token scope")

// guard runs allow against the caller's claims. Missing claims are 401, a
// refusal is the returned error.
func guard(allow func(c *gin.Context, claims *models.JWTClaims) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if err := allow(c, claims); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles admits callers holding one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	set := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return guard(func(_ *gin.Context, claims *models.JWTClaims) error {
		if !set[claims.Role] {
			return appErrors.ErrForbidden
		}
		return nil
	})
}

// SchoolScope pins the route parameter param to the token's school. Roles
// that read across schools pass untouched; any other token without a school
// is refused.
func SchoolScope(param string) gin.HandlerFunc {
	return guard(func(c *gin.Context, claims *models.JWTClaims) error {
		if claims.ReadsSchool(c.Param(param)) {
			return nil
		}
		return errOutsideSchool
	})
}

// RequireSchool refuses tokens of roles that are not cross-school but carry
// no school, for routes whose school is only known after a lookup.
func RequireSchool() gin.HandlerFunc {
	return guard(func(_ *gin.Context, claims *models.JWTClaims) error {
		if claims.Role.CrossSchool() || claims.SchoolID != "" {
			return nil
		}
		return errOutsideSchool
	})
}
