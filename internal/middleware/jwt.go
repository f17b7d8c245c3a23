package middleware

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

// TokenIssuer identifies the service that issues staff access tokens.
const TokenIssuer = "villa-ops"

/*
ValidateToken checks the signature (RS256 only), expiry and issuer, then
turns the sub and roles claims into the acting Staff.
*/
func ValidateToken(tokenString string, publicKey *rsa.PublicKey) (models.Staff, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(TokenIssuer),
	)
	if err != nil {
		return models.Staff{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Staff{}, errors.New("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Staff{}, errors.New("missing subject")
	}

	staff := models.Staff{ID: sub}
	raw, _ := claims["roles"].([]any)
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return models.Staff{}, fmt.Errorf("invalid role claim %v", r)
		}
		staff.Capabilities = append(staff.Capabilities, models.RoleTag(s))
	}
	return staff, nil
}
