package handlers

import (
	"time"

	"github.com/gituhb/backend/internal/campus"
	"github.com/gituhb/backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	ping     func() error
	registry *campus.Registry
}

func NewHealthHandler(ping func() error, registry *campus.Registry) *HealthHandler {
	return &HealthHandler{ping: ping, registry: registry}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	cat := h.registry.Get()
	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Campus:    cat.Name,
		TechCount: len(cat.TechStack),
	})
}
