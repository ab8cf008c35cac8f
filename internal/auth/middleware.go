package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

const operatorKey = "auth_operator"

// RequireBearer validates JWT bearer tokens on operational routes.
func RequireBearer(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperrors.NewUnauthorized("missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}

		claims, err := tokens.ParseToken(parts[1])
		if err != nil {
			return apperrors.NewUnauthorized("invalid token")
		}

		c.Locals(operatorKey, claims.Operator)
		return c.Next()
	}
}

// RequireWebhookToken checks the provider's shared webhook token when one is
// configured. An empty configured token disables the check.
func RequireWebhookToken(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}
		got := c.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return apperrors.NewUnauthorized("invalid webhook token")
		}
		return c.Next()
	}
}

// OperatorFromContext retrieves the authenticated operator name.
func OperatorFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(operatorKey)
	if val == nil {
		return "", false
	}
	operator, ok := val.(string)
	return operator, ok
}
