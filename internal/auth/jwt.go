package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carelinehq/telehealth-queue/internal/appointment"
)

// Claims are the JWT claims carried by the identity provider's tokens:
// the user id and role are all this service needs.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token and returns the actor it names.
func ParseToken(tokenString, secret string) (appointment.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return appointment.Actor{}, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("invalid user_id claim: %w", err)
	}

	role := appointment.Role(claims.Role)
	if role != appointment.RolePatient && role != appointment.RoleDoctor {
		return appointment.Actor{}, fmt.Errorf("invalid role claim: %q", claims.Role)
	}

	return appointment.Actor{UserID: userID, Role: role}, nil
}

// SignToken issues an HS256 token for an actor. The service itself only
// consumes tokens; this is for cmd/seed and tests.
func SignToken(actor appointment.Actor, secret string, registered jwt.RegisteredClaims) (string, error) {
	claims := &Claims{
		UserID:           actor.UserID.String(),
		Role:             string(actor.Role),
		RegisteredClaims: registered,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
