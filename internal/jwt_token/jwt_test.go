package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "refroute/pkg/domain-errors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "refroute")
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "officer", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "officer", claims.Role)
	assert.NotEmpty(t, claims.JTI)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("secret", "refroute")
	token, err := svc.GenerateAccessToken(uuid.New(), "officer", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsWrongKeyAndIssuer(t *testing.T) {
	issued, err := NewJWTService("other", "refroute").GenerateAccessToken(uuid.New(), "admin", time.Hour)
	require.NoError(t, err)
	_, err = NewJWTService("secret", "refroute").ValidateToken(issued)
	assert.Error(t, err)

	issued, err = NewJWTService("secret", "elsewhere").GenerateAccessToken(uuid.New(), "admin", time.Hour)
	require.NoError(t, err)
	_, err = NewJWTService("secret", "refroute").ValidateToken(issued)
	assert.Error(t, err)
}

func TestValidateRejectsMissingRole(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "refroute",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTService("secret", "refroute").ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateRejectsOtherAlgorithmsAndMissingExpiry(t *testing.T) {
	claims := Claims{UserID: uuid.NewString(), Role: "officer"}
	claims.Issuer = "refroute"

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTService("secret", "refroute").ValidateToken(noExpiry)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTService("secret", "refroute").ValidateToken(hs512)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
