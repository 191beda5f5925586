package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/wrapper"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BearerTokenAuth rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func BearerTokenAuth(token string, log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Debug("missing authorization header",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return unauthorized(c, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			log.Debug("malformed authorization header", zap.String("path", c.Path()))
			return unauthorized(c, "malformed authorization header")
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			log.Debug("invalid api token",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return unauthorized(c, "invalid api token")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(http.StatusUnauthorized).JSON(wrapper.ResponseFailed(http.StatusUnauthorized, message))
}
