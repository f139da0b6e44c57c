// Package session resolves the caller's identity from the verified access
// token placed in the request context by the JWT middleware.
package session

import (
	"errors"

	"github.com/gituhb/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is where the JWT middleware stores the parsed token.
const ContextKey = "user"

// UserID extracts the user UUID from the token's sub claim.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, err := claimsOf(c)
	if err != nil {
		return uuid.Nil, err
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}

	return uuid.Parse(sub)
}

// Identity returns the signed-in caller, or nil for anonymous requests.
func Identity(c *fiber.Ctx) *services.Identity {
	userID, err := UserID(c)
	if err != nil {
		return nil
	}
	claims, _ := claimsOf(c)
	verified, _ := claims["uh_email_verified"].(bool)
	return &services.Identity{UserID: userID, UHEmailVerified: verified}
}

func claimsOf(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals(ContextKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
