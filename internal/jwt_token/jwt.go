// Package jwttoken issues and verifies the HS256 bearer tokens that identify
// the actor on every reference API call.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/middleware/auth"
)

// Claims is the token payload: who acts and with which role.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTService struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTService(signingKey, issuer string) *JWTService {
	return &JWTService{
		key:    []byte(signingKey),
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateAccessToken signs a token for user acting as role, valid for ttl.
func (s *JWTService) GenerateAccessToken(user uuid.UUID, role string, ttl time.Duration) (string, error) {
	issuedAt := time.Now()
	claims := Claims{UserID: user.String(), Role: role}
	claims.Issuer = s.issuer
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// ValidateToken satisfies auth.JWTValidator. Every failure is unauthorized;
// only expiry gets its own message.
func (s *JWTService) ValidateToken(raw string) (*auth.JWTClaims, error) {
	claims := new(Claims)
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.key, nil })
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	case claims.UserID == "" || claims.Role == "":
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token is missing user or role")
	}
	return &auth.JWTClaims{UserID: claims.UserID, Role: claims.Role, JTI: claims.ID}, nil
}
