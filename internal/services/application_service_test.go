package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/gituhb/backend/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesPendingApplication(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	applicant := e.user(t, true)
	p, roles := e.project(t, owner)

	app, err := e.applications.Submit(e.ctx, ident(applicant), SubmitInput{
		ProjectID: p.ID,
		RoleID:    roles[0].ID,
		Message:   "  " + pitch() + "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Equal(t, strings.TrimSpace(pitch()), app.Message)

	mine, err := e.listings.ForApplicant(e.ctx, applicant.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, app.ID, mine[0].ID)
	require.NotNil(t, mine[0].Project)
	assert.Equal(t, p.ID, mine[0].Project.ID)
}

func TestSubmitPreconditions(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	applicant := e.user(t, true)
	unverified := e.user(t, false)
	p, roles := e.project(t, owner)
	_, otherRoles := e.project(t, e.user(t, true))

	paused, pausedRoles := e.project(t, owner)
	paused.Status = models.ProjectPaused
	require.NoError(t, e.st.SaveProject(e.ctx, paused))

	cases := []struct {
		name string
		id   *Identity
		in   SubmitInput
		want error
	}{
		{"anonymous", nil, SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: pitch()}, ErrUnauthenticated},
		{"unverified", ident(unverified), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: pitch()}, ErrEmailNotVerified},
		{"short pitch", ident(applicant), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: strings.Repeat("x", 19)}, ErrMessageTooShort},
		{"long pitch", ident(applicant), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: strings.Repeat("x", 2001)}, ErrMessageTooLong},
		{"no role", ident(applicant), SubmitInput{ProjectID: p.ID, Message: pitch()}, ErrRoleRequired},
		{"unknown project", ident(applicant), SubmitInput{ProjectID: uuid.New(), RoleID: roles[0].ID, Message: pitch()}, ErrProjectNotFound},
		{"paused project", ident(applicant), SubmitInput{ProjectID: paused.ID, RoleID: pausedRoles[0].ID, Message: pitch()}, ErrProjectNotAccepting},
		{"own project", ident(owner), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: pitch()}, ErrOwnProject},
		{"role of another project", ident(applicant), SubmitInput{ProjectID: p.ID, RoleID: otherRoles[0].ID, Message: pitch()}, ErrRoleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.applications.Submit(e.ctx, tc.id, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitPitchBoundaries(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "A", Count: 1}, RoleInput{Title: "B", Count: 1})

	_, err := e.applications.Submit(e.ctx, ident(e.user(t, true)), SubmitInput{
		ProjectID: p.ID, RoleID: roles[0].ID, Message: strings.Repeat("é", MinPitchLength),
	})
	assert.NoError(t, err)

	_, err = e.applications.Submit(e.ctx, ident(e.user(t, true)), SubmitInput{
		ProjectID: p.ID, RoleID: roles[1].ID, Message: strings.Repeat("x", MaxPitchLength),
	})
	assert.NoError(t, err)
}

func TestSubmitRejectsRepeatApplications(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	applicant := e.user(t, true)
	p, roles := e.project(t, owner)

	app := e.apply(t, applicant, p, roles[0])
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationRejected))

	_, err := e.applications.Submit(e.ctx, ident(applicant), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: pitch()})
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestSubmitToFilledRole(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner)

	app := e.apply(t, e.user(t, true), p, roles[0])
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationAccepted))

	_, err := e.applications.Submit(e.ctx, ident(e.user(t, true)), SubmitInput{ProjectID: p.ID, RoleID: roles[0].ID, Message: pitch()})
	assert.ErrorIs(t, err, ErrRoleFilled)
}

func TestAcceptBindsMembershipAndFillsRole(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "Frontend", Count: 2})
	first := e.user(t, true)
	second := e.user(t, true)
	a1 := e.apply(t, first, p, roles[0])
	a2 := e.apply(t, second, p, roles[0])

	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, a1.ID, models.ApplicationAccepted))
	role, err := e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.False(t, role.Filled)

	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, a2.ID, models.ApplicationAccepted))
	role, err = e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.True(t, role.Filled)

	m, err := e.st.GetMembership(e.ctx, first.ID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, m.ProjectRoleID)
	assert.Equal(t, roles[0].ID, *m.ProjectRoleID)
	assert.Equal(t, models.MemberMember, m.Role)

	got, err := e.st.GetApplication(e.ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationAccepted, got.Status)
}

func TestSetStatusRepeatIsIdempotent(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner)
	app := e.apply(t, e.user(t, true), p, roles[0])

	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationAccepted))
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationAccepted))

	n, err := e.st.CountRoleMembers(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationRejected)
	assert.ErrorIs(t, err, ErrApplicationDecided)
}

func TestSetStatusGuards(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "Design", Count: 3})
	app := e.apply(t, e.user(t, true), p, roles[0])
	otherProject, _ := e.project(t, owner)

	err := e.applications.SetStatus(e.ctx, nil, p.ID, app.ID, models.ApplicationAccepted)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationWithdrawn)
	assert.ErrorIs(t, err, ErrInvalidDecision)

	err = e.applications.SetStatus(e.ctx, ident(e.user(t, true)), p.ID, app.ID, models.ApplicationAccepted)
	assert.ErrorIs(t, err, ErrNotProjectOwner)

	err = e.applications.SetStatus(e.ctx, ident(owner), otherProject.ID, app.ID, models.ApplicationAccepted)
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	err = e.applications.SetStatus(e.ctx, ident(owner), uuid.New(), app.ID, models.ApplicationAccepted)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestAcceptIntoFullRoleLeavesApplicationPending(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner)
	a1 := e.apply(t, e.user(t, true), p, roles[0])
	a2 := e.apply(t, e.user(t, true), p, roles[0])

	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, a1.ID, models.ApplicationAccepted))
	err := e.applications.SetStatus(e.ctx, ident(owner), p.ID, a2.ID, models.ApplicationAccepted)
	assert.ErrorIs(t, err, ErrRoleFilled)

	got, err := e.st.GetApplication(e.ctx, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, got.Status)

	// Rejecting is still possible.
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, a2.ID, models.ApplicationRejected))
}

func TestConcurrentAcceptsNeverOverfillRole(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner)

	const applicants = 8
	apps := make([]*models.Application, applicants)
	for i := range apps {
		apps[i] = e.apply(t, e.user(t, true), p, roles[0])
	}

	var wg sync.WaitGroup
	errs := make([]error, applicants)
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.applications.SetStatus(e.ctx, ident(owner), p.ID, apps[i].ID, models.ApplicationAccepted)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrRoleFilled)
	}
	assert.Equal(t, 1, succeeded)

	n, err := e.st.CountRoleMembers(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	role, err := e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.True(t, role.Filled)
}

func TestAcceptMovesMemberBetweenRoles(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "Backend", Count: 1}, RoleInput{Title: "Frontend", Count: 1})
	member := e.user(t, true)

	first := e.apply(t, member, p, roles[0])
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, first.ID, models.ApplicationAccepted))
	second := e.apply(t, member, p, roles[1])
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, second.ID, models.ApplicationAccepted))

	m, err := e.st.GetMembership(e.ctx, member.ID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, m.ProjectRoleID)
	assert.Equal(t, roles[1].ID, *m.ProjectRoleID)

	backend, err := e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.False(t, backend.Filled)
	frontend, err := e.st.GetRole(e.ctx, roles[1].ID)
	require.NoError(t, err)
	assert.True(t, frontend.Filled)
}

func TestWithdraw(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	applicant := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "Backend", Count: 1}, RoleInput{Title: "Frontend", Count: 1})

	app := e.apply(t, applicant, p, roles[0])
	assert.ErrorIs(t, e.applications.Withdraw(e.ctx, ident(owner), app.ID), ErrNotApplicant)
	assert.ErrorIs(t, e.applications.Withdraw(e.ctx, nil, app.ID), ErrUnauthenticated)
	assert.ErrorIs(t, e.applications.Withdraw(e.ctx, ident(applicant), uuid.New()), ErrApplicationNotFound)

	require.NoError(t, e.applications.Withdraw(e.ctx, ident(applicant), app.ID))
	got, err := e.st.GetApplication(e.ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationWithdrawn, got.Status)

	assert.ErrorIs(t, e.applications.Withdraw(e.ctx, ident(applicant), app.ID), ErrWithdrawNotPending)

	decided := e.apply(t, applicant, p, roles[1])
	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, decided.ID, models.ApplicationRejected))
	assert.ErrorIs(t, e.applications.Withdraw(e.ctx, ident(applicant), decided.ID), ErrWithdrawNotPending)
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrRoleFilled))
	assert.Equal(t, KindPreconditionFailed, KindOf(ErrApplicationDecided))
	assert.Equal(t, Kind(""), KindOf(assert.AnError))
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "forbidden", outcome(ErrOwnProject))
	assert.Equal(t, "error", outcome(assert.AnError))
}

func TestRejectNeverTouchesMembershipOrFill(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	applicant := e.user(t, true)
	p, roles := e.project(t, owner, RoleInput{Title: "Data", Count: 1})
	app := e.apply(t, applicant, p, roles[0])

	require.NoError(t, e.applications.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationRejected))

	_, err := e.st.GetMembership(e.ctx, applicant.ID, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	role, err := e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.False(t, role.Filled)

	n, err := e.st.CountRoleMembers(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := e.st.GetApplication(e.ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, got.Status)
}

// callLog records the order of store calls made inside transactions.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) index(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.calls {
		if c == name {
			return i
		}
	}
	return -1
}

type recordingStore struct {
	*memstore.Store
	log *callLog
}

func (s recordingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(recordingTx{Tx: tx, log: s.log})
	})
}

type recordingTx struct {
	store.Tx
	log *callLog
}

func (t recordingTx) LockProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	t.log.add("LockProject")
	return t.Tx.LockProject(ctx, id)
}

func (t recordingTx) LockRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error) {
	t.log.add("LockRole")
	return t.Tx.LockRole(ctx, id)
}

func (t recordingTx) GetMembership(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectMember, error) {
	t.log.add("GetMembership")
	return t.Tx.GetMembership(ctx, userID, projectID)
}

func (t recordingTx) CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int64, error) {
	t.log.add("CountRoleMembers")
	return t.Tx.CountRoleMembers(ctx, roleID)
}

func (t recordingTx) UpsertMembership(ctx context.Context, m *models.ProjectMember) error {
	t.log.add("UpsertMembership")
	return t.Tx.UpsertMembership(ctx, m)
}

func TestAcceptLocksBeforeCounting(t *testing.T) {
	e := newEnv(t)
	owner := e.user(t, true)
	p, roles := e.project(t, owner)
	app := e.apply(t, e.user(t, true), p, roles[0])

	log := &callLog{}
	svc := NewApplicationService(recordingStore{Store: e.st, log: log})
	require.NoError(t, svc.SetStatus(e.ctx, ident(owner), p.ID, app.ID, models.ApplicationAccepted))

	project, role := log.index("LockProject"), log.index("LockRole")
	membership, count := log.index("GetMembership"), log.index("CountRoleMembers")
	upsert := log.index("UpsertMembership")

	require.NotEqual(t, -1, project, "calls: %v", log.calls)
	assert.Less(t, project, role, "calls: %v", log.calls)
	assert.Less(t, project, membership, "calls: %v", log.calls)
	assert.Less(t, role, count, "calls: %v", log.calls)
	assert.Less(t, count, upsert, "calls: %v", log.calls)

	filled, err := e.st.GetRole(e.ctx, roles[0].ID)
	require.NoError(t, err)
	assert.True(t, filled.Filled)
}
