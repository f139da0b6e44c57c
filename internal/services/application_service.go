package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gituhb/backend/internal/metrics"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
)

const (
	MinPitchLength = 20
	MaxPitchLength = 2000
)

// ApplicationService owns the application lifecycle: submission, owner
// decisions and withdrawal, plus the membership and role fill side effects
// of an acceptance. Each operation runs in a single store transaction.
type ApplicationService struct {
	store store.Store
}

func NewApplicationService(st store.Store) *ApplicationService {
	return &ApplicationService{store: st}
}

type SubmitInput struct {
	ProjectID uuid.UUID
	RoleID    uuid.UUID
	Message   string
}

// Submit creates a PENDING application. Preconditions are checked in order
// and the first failure is returned.
func (s *ApplicationService) Submit(ctx context.Context, id *Identity, in SubmitInput) (*models.Application, error) {
	app, err := s.submit(ctx, id, in)
	metrics.ObserveWorkflow("submit", outcome(err))
	if err == nil {
		slog.Info("application submitted",
			"action", "application.submit",
			"user_id", app.UserID.String(),
			"project_id", app.ProjectID.String(),
			"role_id", app.RoleID.String())
	}
	return app, err
}

func (s *ApplicationService) submit(ctx context.Context, id *Identity, in SubmitInput) (*models.Application, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}

	var created *models.Application
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.GetUser(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load applicant: %w", err)
		}
		if !user.UHEmailVerified {
			return ErrEmailNotVerified
		}

		message := strings.TrimSpace(in.Message)
		if err := validatePitch(message); err != nil {
			return err
		}
		if in.RoleID == uuid.Nil {
			return ErrRoleRequired
		}

		project, err := tx.GetProject(ctx, in.ProjectID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		if project.Status != models.ProjectActive {
			return ErrProjectNotAccepting
		}
		if project.OwnerID == user.ID {
			return ErrOwnProject
		}

		role, err := tx.GetRole(ctx, in.RoleID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && role.ProjectID != project.ID) {
			return ErrRoleNotFound
		}
		if err != nil {
			return fmt.Errorf("load role: %w", err)
		}

		_, err = tx.FindApplication(ctx, user.ID, project.ID, role.ID)
		if err == nil {
			return ErrAlreadyApplied
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check existing application: %w", err)
		}
		if role.Filled {
			return ErrRoleFilled
		}

		app := &models.Application{
			ID:        uuid.New(),
			UserID:    user.ID,
			ProjectID: project.ID,
			RoleID:    role.ID,
			Message:   message,
			Status:    models.ApplicationPending,
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrAlreadyApplied
			}
			return fmt.Errorf("create application: %w", err)
		}
		created = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validatePitch(message string) error {
	n := utf8.RuneCountInString(message)
	if n < MinPitchLength {
		return ErrMessageTooShort
	}
	if n > MaxPitchLength {
		return ErrMessageTooLong
	}
	return nil
}

// SetStatus records the owner's decision on an application. Accepting
// upserts the applicant's membership keyed on (user, project) and recounts
// the role's members under a row lock; an acceptance that would push the
// role past its capacity fails with ErrRoleFilled. Repeating a decision
// already taken is a no-op apart from re-running the acceptance upsert.
func (s *ApplicationService) SetStatus(ctx context.Context, id *Identity, projectID, applicationID uuid.UUID, status models.ApplicationStatus) error {
	err := s.setStatus(ctx, id, projectID, applicationID, status)
	metrics.ObserveWorkflow("decide", outcome(err))
	if err == nil {
		metrics.ObserveDecision(string(status))
		slog.Info("application decided",
			"action", "application.decide",
			"application_id", applicationID.String(),
			"status", string(status))
	}
	return err
}

func (s *ApplicationService) setStatus(ctx context.Context, id *Identity, projectID, applicationID uuid.UUID, status models.ApplicationStatus) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if status != models.ApplicationAccepted && status != models.ApplicationRejected {
		return ErrInvalidDecision
	}

	return s.store.WithTx(ctx, func(tx store.Tx) error {
		// Decisions on one project run one at a time, so the membership
		// read in accept is current.
		project, err := tx.LockProject(ctx, projectID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		if project.OwnerID != id.UserID {
			return ErrNotProjectOwner
		}

		app, err := tx.GetApplication(ctx, applicationID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && app.ProjectID != project.ID) {
			return ErrApplicationNotFound
		}
		if err != nil {
			return fmt.Errorf("load application: %w", err)
		}
		if app.Status != models.ApplicationPending && app.Status != status {
			return ErrApplicationDecided
		}

		if status == models.ApplicationRejected {
			if app.Status == models.ApplicationRejected {
				return nil
			}
			return transition(ctx, tx, app.ID, models.ApplicationPending, models.ApplicationRejected, ErrApplicationDecided)
		}
		return accept(ctx, tx, app)
	})
}

func accept(ctx context.Context, tx store.Tx, app *models.Application) error {
	role, err := tx.LockRole(ctx, app.RoleID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("lock role: %w", err)
	}

	member, err := tx.GetMembership(ctx, app.UserID, app.ProjectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load membership: %w", err)
	}
	bound := member != nil && member.ProjectRoleID != nil && *member.ProjectRoleID == role.ID

	if !bound {
		n, err := tx.CountRoleMembers(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("count role members: %w", err)
		}
		if n >= int64(role.Count) {
			return ErrRoleFilled
		}
	}

	if app.Status == models.ApplicationPending {
		if err := transition(ctx, tx, app.ID, models.ApplicationPending, models.ApplicationAccepted, ErrApplicationDecided); err != nil {
			return err
		}
	}

	roleID := role.ID
	if err := tx.UpsertMembership(ctx, &models.ProjectMember{
		ID:            uuid.New(),
		UserID:        app.UserID,
		ProjectID:     app.ProjectID,
		ProjectRoleID: &roleID,
		Role:          models.MemberMember,
	}); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	if err := recomputeFill(ctx, tx, role); err != nil {
		return err
	}

	// The member moved away from another role; that role may have a free slot now.
	if member != nil && member.ProjectRoleID != nil && !bound {
		prev, err := tx.LockRole(ctx, *member.ProjectRoleID)
		if err == nil {
			return recomputeFill(ctx, tx, prev)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lock previous role: %w", err)
		}
	}
	return nil
}

// recomputeFill sets role.Filled from a fresh member count. Callers hold the
// role's row lock.
func recomputeFill(ctx context.Context, tx store.Tx, role *models.ProjectRole) error {
	n, err := tx.CountRoleMembers(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("count role members: %w", err)
	}
	filled := n >= int64(role.Count)
	if filled == role.Filled {
		return nil
	}
	if err := tx.SetRoleFilled(ctx, role.ID, filled); err != nil {
		return fmt.Errorf("set role filled: %w", err)
	}
	role.Filled = filled
	return nil
}

func transition(ctx context.Context, tx store.Tx, id uuid.UUID, from, to models.ApplicationStatus, lost error) error {
	ok, err := tx.TransitionApplication(ctx, id, from, to)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if !ok {
		return lost
	}
	return nil
}

// Withdraw lets the applicant retract a PENDING application.
func (s *ApplicationService) Withdraw(ctx context.Context, id *Identity, applicationID uuid.UUID) error {
	err := s.withdraw(ctx, id, applicationID)
	metrics.ObserveWorkflow("withdraw", outcome(err))
	return err
}

func (s *ApplicationService) withdraw(ctx context.Context, id *Identity, applicationID uuid.UUID) error {
	if id == nil {
		return ErrUnauthenticated
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrApplicationNotFound
		}
		if err != nil {
			return fmt.Errorf("load application: %w", err)
		}
		if app.UserID != id.UserID {
			return ErrNotApplicant
		}
		if app.Status != models.ApplicationPending {
			return ErrWithdrawNotPending
		}
		return transition(ctx, tx, app.ID, models.ApplicationPending, models.ApplicationWithdrawn, ErrWithdrawNotPending)
	})
}

// outcome labels err for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
