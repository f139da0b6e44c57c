package handlers

import (
	"log/slog"

	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

var kindStatus = map[services.Kind]int{
	services.KindUnauthenticated:    fiber.StatusUnauthorized,
	services.KindForbidden:          fiber.StatusForbidden,
	services.KindNotFound:           fiber.StatusNotFound,
	services.KindInvalidInput:       fiber.StatusBadRequest,
	services.KindConflict:           fiber.StatusConflict,
	services.KindPreconditionFailed: fiber.StatusPreconditionFailed,
}

// respondError writes err as a dto.ErrorResponse. Expected failures keep
// their message; anything else is logged and reported as a 500.
func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		return c.Status(status).JSON(dto.ErrorResponse{
			Error: true, Code: string(kind), Message: err.Error(),
		})
	}

	slog.Error("request failed",
		"action", c.Method()+" "+c.Route().Path,
		"trace_id", requestID(c),
		"error", err.Error())
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Code: "internal", Message: "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Code: string(services.KindInvalidInput), Message: msg,
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
		return id
	}
	return ""
}
