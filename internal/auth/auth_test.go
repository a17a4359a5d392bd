package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/iotfleet/internal/models"
)

const testSecret = "test-secret"

func TestNewService(t *testing.T) {
	service, err := NewService(testSecret, 0)
	assert.NoError(t, err)
	assert.NotNil(t, service)
	assert.NotEmpty(t, service.jwtSecret)
	assert.Equal(t, DefaultExpiry, service.tokenExp)

	service, err = NewService(testSecret, time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, time.Hour, service.Expiry())

	_, err = NewService("", time.Hour)
	assert.Error(t, err)
}

func TestService_GenerateToken(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	token, err := service.GenerateToken("operator-1", models.RoleOperator)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = service.GenerateToken("", models.RoleOperator)
	assert.ErrorIs(t, err, ErrEmptySubject)

	_, err = service.GenerateToken("x", models.Role("superuser"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestService_ValidateToken(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	token, _ := service.GenerateToken("sensor-gw-7", models.RoleDevice)

	// Test valid token
	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, "sensor-gw-7", claims.Subject)
	assert.Equal(t, models.RoleDevice, claims.Role)

	// Test invalid token
	_, err = service.ValidateToken("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)

	// Test token with Bearer prefix
	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)

	// Test token signed with another secret
	other, _ := NewService("another-secret", time.Hour)
	foreign, _ := other.GenerateToken("sensor-gw-7", models.RoleDevice)
	_, err = service.ValidateToken(foreign)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_RejectsUnknownRole(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "someone",
		"role": "superuser",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "someone",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	// Test valid header
	token := "valid-token"
	header := "Bearer " + token
	extracted, err := service.ExtractTokenFromHeader(header)
	assert.NoError(t, err)
	assert.Equal(t, token, extracted)

	// Test empty header
	_, err = service.ExtractTokenFromHeader("")
	assert.Equal(t, ErrInvalidToken, err)

	// Test invalid format
	_, err = service.ExtractTokenFromHeader("InvalidFormat")
	assert.Equal(t, ErrInvalidToken, err)

	// Test missing token
	_, err = service.ExtractTokenFromHeader("Bearer ")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_TokenExpiration(t *testing.T) {
	service, _ := NewService(testSecret, time.Hour)

	token, _ := service.GenerateToken("viewer-1", models.RoleViewer)

	// Token should be valid immediately
	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	require.NotNil(t, claims)

	// Check expiration time
	now := time.Now().Unix()
	assert.Greater(t, claims.Exp, now)
	assert.LessOrEqual(t, claims.Exp, now+int64(service.tokenExp.Seconds())+1)

	// Token is rejected once the clock passes exp
	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrExpiredToken, err)
}
