package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/gituhb/backend/internal/campus"
	"github.com/gituhb/backend/internal/mail"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// VerificationService proves ownership of an institutional email address
// with a short-lived six digit code.
type VerificationService struct {
	store  store.Store
	campus *campus.Registry
	mailer mail.Mailer
	ttl    time.Duration
	now    func() time.Time
}

func NewVerificationService(st store.Store, reg *campus.Registry, mailer mail.Mailer, ttl time.Duration) *VerificationService {
	return &VerificationService{store: st, campus: reg, mailer: mailer, ttl: ttl, now: time.Now}
}

// Send replaces any outstanding codes of the user with a fresh one and
// mails it to email.
func (s *VerificationService) Send(ctx context.Context, id *Identity, email string) error {
	if id == nil {
		return ErrUnauthenticated
	}
	email = normalizeEmail(email)
	if email == "" || !s.campus.IsCampusEmail(email) {
		return ErrNotCampusEmail
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.GetUser(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user.UHEmailVerified && user.UHEmail != nil && *user.UHEmail == email {
			return ErrAlreadyVerified
		}

		holder, err := tx.GetUserByUHEmail(ctx, email)
		if err == nil && holder.ID != user.ID {
			return ErrEmailClaimed
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check email holder: %w", err)
		}

		if err := tx.DeleteVerifications(ctx, user.ID); err != nil {
			return fmt.Errorf("delete previous codes: %w", err)
		}
		return tx.CreateVerification(ctx, &models.EmailVerification{
			ID:        uuid.New(),
			UserID:    user.ID,
			Email:     email,
			CodeHash:  string(hash),
			ExpiresAt: s.now().Add(s.ttl),
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}

	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	slog.Info("verification code sent", "action", "verify.send", "user_id", id.UserID.String())
	return nil
}

// Confirm marks email as the user's verified address when code matches an
// unexpired verification. The verified flag is never cleared afterwards.
func (s *VerificationService) Confirm(ctx context.Context, id *Identity, email, code string) error {
	if id == nil {
		return ErrUnauthenticated
	}
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrMissingEmailOrCode
	}

	return s.store.WithTx(ctx, func(tx store.Tx) error {
		pending, err := tx.ListActiveVerifications(ctx, id.UserID, email, s.now())
		if err != nil {
			return fmt.Errorf("load verification codes: %w", err)
		}

		matched := false
		for _, v := range pending {
			if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)) == nil {
				matched = true
				break
			}
		}
		if !matched {
			return ErrInvalidCode
		}

		if err := tx.MarkEmailVerified(ctx, id.UserID, email); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrEmailClaimed
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnauthenticated
			}
			return fmt.Errorf("mark email verified: %w", err)
		}
		if err := tx.DeleteVerifications(ctx, id.UserID); err != nil {
			return fmt.Errorf("delete codes: %w", err)
		}
		slog.Info("campus email verified", "action", "verify.confirm", "user_id", id.UserID.String())
		return nil
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
