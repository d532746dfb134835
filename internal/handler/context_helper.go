package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
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

// schoolFromContext resolves the tenant of the session. It writes a 401 and
// returns false when the request carries no school-scoped claims.
func schoolFromContext(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.SchoolID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.SchoolID, true
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
