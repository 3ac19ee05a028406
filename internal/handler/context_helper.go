package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/wellness-analytics-api/internal/middleware"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
	"github.com/noah-isme/wellness-analytics-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// readScope resolves the school a lookup by record id is confined to. It
// writes the error response and reports false when the caller may read no
// school at all.
func readScope(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if !claims.Role.CrossSchool() && claims.SchoolID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "school outside of token scope"))
		return "", false
	}
	return claims.ScopeSchool(), true
}

// bindQuery binds query parameters into dst and validates them.
func bindQuery(c *gin.Context, validate *validator.Validate, dst interface{}) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return appErrors.ErrValidation.Wrap(err, "invalid query parameters")
	}
	return validateStruct(validate, dst)
}

// bindJSON binds the request body into dst and validates it.
func bindJSON(c *gin.Context, validate *validator.Validate, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return appErrors.ErrValidation.Wrap(err, "invalid request body")
	}
	return validateStruct(validate, dst)
}

func validateStruct(validate *validator.Validate, dst interface{}) error {
	if validate == nil {
		return nil
	}
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return appErrors.ErrValidation.Wrap(err, strings.Join(parts, "; "))
	}
	return appErrors.ErrValidation.Wrap(err, "invalid request")
}

// writeView renders a computed view with its cache and window metadata.
func writeView[T any](c *gin.Context, view *service.View[T]) {
	middleware.SetCacheHit(c, view.CacheHit)
	middleware.SetWindow(c, string(view.Window.Period), view.Window.Start, view.Window.End)
	response.JSON(c, http.StatusOK, view.Data, view.Pagination, middleware.ExtractMeta(c))
}
