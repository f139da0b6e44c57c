package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gituhb/backend/internal/config"
	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/github"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GitHubUsers resolves a GitHub OAuth access token to its account.
type GitHubUsers interface {
	FetchUser(ctx context.Context, token string) (*github.User, error)
}

type AuthService struct {
	store  store.Store
	cfg    *config.Config
	github GitHubUsers
	now    func() time.Time
}

func NewAuthService(st store.Store, cfg *config.Config, gh GitHubUsers) *AuthService {
	return &AuthService{store: st, cfg: cfg, github: gh, now: time.Now}
}

// GitHubSignIn signs the GitHub account in, creating the user on first use.
// The username stays empty until onboarding.
func (s *AuthService) GitHubSignIn(ctx context.Context, req *dto.GitHubSignInRequest) (*dto.AuthResponse, error) {
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		return nil, ErrGitHubTokenMissing
	}

	ghUser, err := s.github.FetchUser(ctx, token)
	if err != nil {
		if github.IsUnauthorized(err) {
			return nil, ErrGitHubRejected
		}
		return nil, fmt.Errorf("failed to resolve github user: %w", err)
	}

	user, err := s.upsertGitHubUser(ctx, ghUser, token)
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent first sign-in created the row.
		user, err = s.upsertGitHubUser(ctx, ghUser, token)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in", "action", "auth.github", "user_id", user.ID.String())
	return s.generateTokenPair(ctx, user)
}

func (s *AuthService) upsertGitHubUser(ctx context.Context, gh *github.User, token string) (*models.User, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetUserByGitHubID(ctx, gh.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load user: %w", err)
		}

		if existing != nil {
			existing.GitHubUsername = gh.Login
			existing.GitHubProfileURL = gh.ProfileURL
			existing.GitHubAccessToken = token
			existing.Image = gh.AvatarURL
			if existing.Name == "" {
				existing.Name = displayName(gh)
			}
			if err := tx.SaveUser(ctx, existing); err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
			user = existing
			return nil
		}

		u := &models.User{
			ID:                uuid.New(),
			Name:              displayName(gh),
			Email:             gh.Email,
			Image:             gh.AvatarURL,
			GitHubID:          gh.ID,
			GitHubUsername:    gh.Login,
			GitHubProfileURL:  gh.ProfileURL,
			GitHubAccessToken: token,
			Skills:            []string{},
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return err
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

func displayName(gh *github.User) string {
	if gh.Name != "" {
		return gh.Name
	}
	return gh.Login
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	tokenHash := hashToken(req.RefreshToken)

	var user *models.User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		stored, err := tx.GetActiveRefreshToken(ctx, tokenHash)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if err := tx.RevokeRefreshToken(ctx, tokenHash); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if s.now().After(stored.ExpiresAt) {
			return ErrInvalidToken
		}

		user, err = tx.GetUser(ctx, stored.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("user not found: %w", err)
		}
		return nil
	})
	if err != nil {
		// An expired token is still revoked.
		if errors.Is(err, ErrInvalidToken) {
			_ = s.store.RevokeRefreshToken(ctx, tokenHash)
		}
		return nil, err
	}

	return s.generateTokenPair(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, req *dto.LogoutRequest) error {
	return s.store.RevokeRefreshToken(ctx, hashToken(req.RefreshToken))
}

// DisconnectGitHub forgets the linked GitHub login, profile URL and access
// token. The GitHub id stays so the next sign-in finds the same user.
func (s *AuthService) DisconnectGitHub(ctx context.Context, id *Identity) error {
	if id == nil {
		return ErrUnauthenticated
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}

		u.GitHubUsername = ""
		u.GitHubProfileURL = ""
		u.GitHubAccessToken = ""
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to clear github connection: %w", err)
		}
		return nil
	})
}

// DeleteAccount removes the user and everything hanging off it: sessions,
// pending verifications, applications, memberships in other projects (with
// the affected roles' fill recomputed) and owned projects.
func (s *AuthService) DeleteAccount(ctx context.Context, id *Identity) error {
	if id == nil {
		return ErrUnauthenticated
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetUser(ctx, id.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		owned, err := tx.ListProjectsByOwner(ctx, id.UserID, "")
		if err != nil {
			return fmt.Errorf("failed to list owned projects: %w", err)
		}
		for _, p := range owned {
			if err := tx.DeleteProject(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to delete project %s: %w", p.ID, err)
			}
		}

		if err := tx.DeleteRefreshTokensForUser(ctx, id.UserID); err != nil {
			return fmt.Errorf("failed to delete refresh tokens: %w", err)
		}
		if err := tx.DeleteVerifications(ctx, id.UserID); err != nil {
			return fmt.Errorf("failed to delete verifications: %w", err)
		}
		if err := tx.DeleteApplicationsByUser(ctx, id.UserID); err != nil {
			return fmt.Errorf("failed to delete applications: %w", err)
		}

		roleIDs, err := tx.DeleteMembershipsByUser(ctx, id.UserID)
		if err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		for _, roleID := range roleIDs {
			role, err := tx.LockRole(ctx, roleID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to lock role: %w", err)
			}
			if err := recomputeFill(ctx, tx, role); err != nil {
				return err
			}
		}

		return tx.DeleteUser(ctx, id.UserID)
	})
	if err == nil {
		slog.Info("account deleted", "action", "auth.delete_account", "user_id", id.UserID.String())
	}
	return err
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         dto.NewUserResponse(user),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":               user.ID.String(),
		"uh_email_verified": user.UHEmailVerified,
		"iat":               now.Unix(),
		"exp":               now.Add(s.cfg.JWTAccessExpiry).Unix(),
	}
	if user.Username != nil {
		claims["username"] = *user.Username
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)
	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: s.now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.store.CreateRefreshToken(ctx, &record); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
