package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gituhb/backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// OpsTokenRequired guards operational endpoints such as /metrics. The token
// is accepted from the X-Ops-Token header or as a bearer token. An empty
// configured token leaves the endpoint open.
func OpsTokenRequired(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		presented := c.Get("X-Ops-Token")
		if presented == "" {
			presented = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Code: "forbidden", Message: "Ops access required",
		})
	}
}
