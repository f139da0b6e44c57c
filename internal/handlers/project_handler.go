package handlers

import (
	"strings"

	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/session"
	"github.com/gituhb/backend/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ProjectHandler struct {
	projects *services.ProjectService
	listings *services.ListingService
	github   *services.GitHubService
}

func NewProjectHandler(projects *services.ProjectService, listings *services.ListingService, gh *services.GitHubService) *ProjectHandler {
	return &ProjectHandler{projects: projects, listings: listings, github: gh}
}

// Search handles GET /api/projects?q=&tech=&time=&status=&page=.
func (h *ProjectHandler) Search(c *fiber.Ctx) error {
	filter := store.ProjectFilter{
		Text:           strings.TrimSpace(c.Query("q")),
		TechTag:        strings.TrimSpace(c.Query("tech")),
		TimeCommitment: models.TimeCommitment(strings.ToUpper(c.Query("time"))),
		Status:         models.ProjectStatus(strings.ToUpper(c.Query("status"))),
	}

	page, err := h.listings.Search(c.UserContext(), filter, c.QueryInt("page", 1))
	if err != nil {
		return respondError(c, err)
	}

	items := page.Items
	if items == nil {
		items = []models.Project{}
	}
	return c.JSON(dto.ProjectListResponse{
		Projects:   items,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Page:       page.Page,
	})
}

func (h *ProjectHandler) Featured(c *fiber.Ctx) error {
	items, err := h.listings.Featured(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []models.Project{}
	}
	return c.JSON(fiber.Map{"projects": items})
}

// Get handles GET /api/projects/:slug. Applications are only returned to
// the owner.
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	p, err := h.listings.GetBySlug(c.UserContext(), session.Identity(c), c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// Mine handles GET /api/me/projects.
func (h *ProjectHandler) Mine(c *fiber.Ctx) error {
	id := session.Identity(c)
	if id == nil {
		return respondError(c, services.ErrUnauthenticated)
	}

	items, err := h.listings.ForOwner(c.UserContext(), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []models.Project{}
	}
	return c.JSON(fiber.Map{"projects": items})
}

func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req dto.ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	p, err := h.projects.Create(c.UserContext(), session.Identity(c), projectInput(&req))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ProjectCreatedResponse{ID: p.ID, Slug: p.Slug})
}

func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}

	var req dto.ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	p, err := h.projects.Update(c.UserContext(), session.Identity(c), projectID, projectInput(&req))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.ProjectCreatedResponse{ID: p.ID, Slug: p.Slug})
}

func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}

	if err := h.projects.Delete(c.UserContext(), session.Identity(c), projectID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Project deleted"})
}

// RefreshGitHub handles POST /api/projects/:id/github/refresh.
func (h *ProjectHandler) RefreshGitHub(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}

	if err := h.projects.RefreshGitHub(c.UserContext(), session.Identity(c), projectID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "GitHub data refreshed"})
}

// Activity handles GET /api/projects/:id/github/activity.
func (h *ProjectHandler) Activity(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, services.ErrProjectNotFound)
	}

	act, err := h.github.Activity(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"repo":         act.Repo,
		"readme_html":  act.ReadmeHTML,
		"contributors": act.Contributors,
		"issues":       act.Issues,
		"commits":      act.Commits,
		"fetched_at":   act.FetchedAt,
	})
}

func projectInput(req *dto.ProjectRequest) services.ProjectInput {
	in := services.ProjectInput{
		Title:           req.Title,
		Description:     req.Description,
		LongDescription: req.LongDescription,
		GitHubRepoURL:   req.GitHubRepoURL,
		TimeCommitment:  models.TimeCommitment(req.TimeCommitment),
		TechStack:       req.TechStack,
		Tags:            req.Tags,
		MaxMembers:      req.MaxMembers,
	}
	if req.Status != nil {
		status := models.ProjectStatus(*req.Status)
		in.Status = &status
	}
	for _, r := range req.Roles {
		in.Roles = append(in.Roles, services.RoleInput{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Count:       r.Count,
		})
	}
	return in
}
