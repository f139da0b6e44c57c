package handlers

import (
	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/session"
	"github.com/gofiber/fiber/v2"
)

type ProfileHandler struct {
	profiles     *services.ProfileService
	verification *services.VerificationService
}

func NewProfileHandler(profiles *services.ProfileService, verification *services.VerificationService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, verification: verification}
}

func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	u, err := h.profiles.Me(c.UserContext(), session.Identity(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MeResponse{ProfileResponse: dto.NewProfileResponse(u, nil), UHEmail: u.UHEmail})
}

func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	var req dto.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	u, err := h.profiles.UpdateProfile(c.UserContext(), session.Identity(c), services.ProfileInput{
		Bio:            req.Bio,
		Skills:         req.Skills,
		Major:          req.Major,
		GraduationYear: req.GraduationYear,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProfileResponse(u, nil))
}

func (h *ProfileHandler) UpdateUsername(c *fiber.Ctx) error {
	var req dto.UsernameRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	u, err := h.profiles.UpdateUsername(c.UserContext(), session.Identity(c), req.Username)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProfileResponse(u, nil))
}

// Get handles GET /api/profiles/:username.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	p, err := h.profiles.GetProfile(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProfileResponse(p.User, p.Projects))
}

func (h *ProfileHandler) SendVerification(c *fiber.Ctx) error {
	var req dto.SendVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.verification.Send(c.UserContext(), session.Identity(c), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *ProfileHandler) ConfirmVerification(c *fiber.Ctx) error {
	var req dto.ConfirmVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.verification.Confirm(c.UserContext(), session.Identity(c), req.Email, req.Code); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
