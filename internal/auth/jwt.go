package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identifies the federation admin submitting a payment request. Token
// issuance lives in the admin portal; this service only validates.
type Claims struct {
	AdminID uuid.UUID
	Email   string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	AdminID string `json:"admin_id"`
	Email   string `json:"email"`
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}

	adminID, err := uuid.Parse(tc.AdminID)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid admin_id in token: %w", err)
	}

	return &Claims{
		AdminID: adminID,
		Email:   tc.Email,
	}, nil
}
