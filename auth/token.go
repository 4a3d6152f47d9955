package auth

import (
	"chat-signal/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-signal"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenVerifier signs and validates HS256 tokens with a shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT for a specific user.
func (v *TokenVerifier) GenerateToken(userID string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
// Only HS256 is accepted.
func (v *TokenVerifier) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.ErrUnauthenticated
}

// Bind checks that the token was issued for userID.
func (v *TokenVerifier) Bind(tokenString, userID string) error {
	if tokenString == "" {
		return fmt.Errorf("%w: token is missing", errors.ErrUnauthenticated)
	}
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return fmt.Errorf("%w: token issued for another user", errors.ErrUnauthenticated)
	}
	return nil
}
