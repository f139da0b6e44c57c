package handlers

import (
	"github.com/gituhb/backend/internal/campus"
	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

var timeCommitmentLabels = map[string]string{
	string(models.LessThan5):   "< 5 hrs/week",
	string(models.FiveToTen):   "5-10 hrs/week",
	string(models.TenToTwenty): "10-20 hrs/week",
	string(models.TwentyPlus):  "20+ hrs/week",
}

// CatalogueHandler serves the form options clients render: tech stack and
// tag choices, accepted campus email domains and time commitment labels.
type CatalogueHandler struct {
	registry *campus.Registry
}

func NewCatalogueHandler(registry *campus.Registry) *CatalogueHandler {
	return &CatalogueHandler{registry: registry}
}

func (h *CatalogueHandler) Get(c *fiber.Ctx) error {
	cat := h.registry.Get()
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(dto.CatalogueResponse{
		Name:            cat.Name,
		EmailDomains:    cat.EmailDomains,
		TechStack:       cat.TechStack,
		Tags:            cat.Tags,
		TimeCommitments: timeCommitmentLabels,
	})
}
