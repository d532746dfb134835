package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "sma-timetable"})

	token, issued, err := svc.IssueToken("user-1", testSchool, models.RoleScheduler, "ops@example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, testSchool, claims.SchoolID)
	assert.Equal(t, models.RoleScheduler, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret"})

	other := NewAuthService(AuthConfig{AccessTokenSecret: "other"})
	foreign, _, err := other.IssueToken("user-1", testSchool, models.RoleAdmin, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	requireAppError(t, err, appErrors.ErrUnauthorized)

	unscoped, _, err := svc.IssueToken("user-1", "", models.RoleAdmin, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(unscoped)
	requireAppError(t, err, appErrors.ErrUnauthorized)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID:   "user-1",
		SchoolID: testSchool,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	requireAppError(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-token")
	requireAppError(t, err, appErrors.ErrUnauthorized)
}
