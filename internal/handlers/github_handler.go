package handlers

import (
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/session"
	"github.com/gofiber/fiber/v2"
)

type GitHubHandler struct {
	github *services.GitHubService
}

func NewGitHubHandler(gh *services.GitHubService) *GitHubHandler {
	return &GitHubHandler{github: gh}
}

// Repos handles GET /api/github/repos for the repository picker.
func (h *GitHubHandler) Repos(c *fiber.Ctx) error {
	repos, err := h.github.UserRepos(c.UserContext(), session.Identity(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(repos)
}
