package handlers

import (
	"strings"

	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ApplicationHandler struct {
	applications *services.ApplicationService
	listings     *services.ListingService
}

func NewApplicationHandler(applications *services.ApplicationService, listings *services.ListingService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, listings: listings}
}

// Submit handles POST /api/projects/:id/applications.
func (h *ApplicationHandler) Submit(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}

	var req dto.SubmitApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var roleID uuid.UUID
	if strings.TrimSpace(req.RoleID) != "" {
		if roleID, err = uuid.Parse(req.RoleID); err != nil {
			return respondError(c, services.ErrRoleNotFound)
		}
	}

	app, err := h.applications.Submit(c.UserContext(), session.Identity(c), services.SubmitInput{
		ProjectID: projectID,
		RoleID:    roleID,
		Message:   req.Message,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(app)
}

// SetStatus handles PUT /api/projects/:id/applications/:appId.
func (h *ApplicationHandler) SetStatus(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}
	appID, err := uuid.Parse(c.Params("appId"))
	if err != nil {
		return respondError(c, services.ErrApplicationNotFound)
	}

	var req dto.ApplicationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	status := models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err := h.applications.SetStatus(c.UserContext(), session.Identity(c), projectID, appID, status); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Application updated", "status": status})
}

// Withdraw handles POST /api/applications/:id/withdraw.
func (h *ApplicationHandler) Withdraw(c *fiber.Ctx) error {
	appID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrApplicationNotFound)
	}

	if err := h.applications.Withdraw(c.UserContext(), session.Identity(c), appID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Application withdrawn"})
}

// Mine handles GET /api/me/applications.
func (h *ApplicationHandler) Mine(c *fiber.Ctx) error {
	id := session.Identity(c)
	if id == nil {
		return respondError(c, services.ErrUnauthenticated)
	}

	apps, err := h.listings.ForApplicant(c.UserContext(), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if apps == nil {
		apps = []models.Application{}
	}

	return c.JSON(fiber.Map{"applications": apps})
}
