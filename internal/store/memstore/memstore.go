// Package memstore is an in-memory store.Store. Transactions are serialised
// by a single mutex and roll back to a snapshot when fn fails, which makes it
// suitable for exercising workflow invariants under concurrency in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
)

type state struct {
	users         map[uuid.UUID]models.User
	tokens        map[uuid.UUID]models.RefreshToken
	verifications map[uuid.UUID]models.EmailVerification
	projects      map[uuid.UUID]models.Project
	roles         map[uuid.UUID]models.ProjectRole
	members       map[uuid.UUID]models.ProjectMember
	apps          map[uuid.UUID]models.Application
}

func newState() *state {
	return &state{
		users:         map[uuid.UUID]models.User{},
		tokens:        map[uuid.UUID]models.RefreshToken{},
		verifications: map[uuid.UUID]models.EmailVerification{},
		projects:      map[uuid.UUID]models.Project{},
		roles:         map[uuid.UUID]models.ProjectRole{},
		members:       map[uuid.UUID]models.ProjectMember{},
		apps:          map[uuid.UUID]models.Application{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		tokens:        cloneMap(s.tokens),
		verifications: cloneMap(s.verifications),
		projects:      cloneMap(s.projects),
		roles:         cloneMap(s.roles),
		members:       cloneMap(s.members),
		apps:          cloneMap(s.apps),
	}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Store is safe for concurrent use.
type Store struct {
	*view
	mu    sync.Mutex
	st    *state
	clock time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		st:    newState(),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.view = &view{s: s, lock: &s.mu}
	return s
}

func (s *Store) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&view{s: s, lock: noopLocker{}}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// now returns strictly increasing timestamps so ordering by creation time
// is deterministic.
func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

type view struct {
	s    *Store
	lock sync.Locker
}

func (v *view) st() *state { return v.s.st }

// --- Users ---

func (v *view) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	u, ok := v.st().users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (v *view) findUser(match func(models.User) bool) (*models.User, error) {
	for _, u := range v.st().users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.findUser(func(u models.User) bool { return u.Username != nil && *u.Username == username })
}

func (v *view) GetUserByGitHubID(_ context.Context, githubID int64) (*models.User, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.findUser(func(u models.User) bool { return u.GitHubID == githubID })
}

func (v *view) GetUserByUHEmail(_ context.Context, email string) (*models.User, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.findUser(func(u models.User) bool { return u.UHEmail != nil && *u.UHEmail == email })
}

func (v *view) CreateUser(_ context.Context, u *models.User) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	for _, other := range v.st().users {
		if other.ID == u.ID || (u.GitHubID != 0 && other.GitHubID == u.GitHubID) ||
			(u.Username != nil && other.Username != nil && *u.Username == *other.Username) {
			return store.ErrDuplicate
		}
	}
	u.CreatedAt = v.s.now()
	u.UpdatedAt = u.CreatedAt
	v.st().users[u.ID] = *u
	return nil
}

func (v *view) SaveUser(_ context.Context, u *models.User) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	cur, ok := v.st().users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if u.Username != nil {
		for id, other := range v.st().users {
			if id != u.ID && other.Username != nil && *other.Username == *u.Username {
				return store.ErrDuplicate
			}
		}
	}
	next := *u
	next.UHEmail = cur.UHEmail
	next.UHEmailVerified = cur.UHEmailVerified
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = v.s.now()
	v.st().users[u.ID] = next
	return nil
}

func (v *view) MarkEmailVerified(_ context.Context, userID uuid.UUID, email string) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	u, ok := v.st().users[userID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range v.st().users {
		if id != userID && other.UHEmail != nil && *other.UHEmail == email {
			return store.ErrDuplicate
		}
	}
	e := email
	u.UHEmail = &e
	u.UHEmailVerified = true
	v.st().users[userID] = u
	return nil
}

func (v *view) DeleteUser(_ context.Context, id uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if _, ok := v.st().users[id]; !ok {
		return store.ErrNotFound
	}
	delete(v.st().users, id)
	return nil
}

// --- Refresh tokens ---

func (v *view) CreateRefreshToken(_ context.Context, t *models.RefreshToken) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for _, other := range v.st().tokens {
		if other.TokenHash == t.TokenHash {
			return store.ErrDuplicate
		}
	}
	t.CreatedAt = v.s.now()
	v.st().tokens[t.ID] = *t
	return nil
}

func (v *view) GetActiveRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, t := range v.st().tokens {
		if t.TokenHash == tokenHash && !t.Revoked {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for id, t := range v.st().tokens {
		if t.TokenHash == tokenHash {
			t.Revoked = true
			v.st().tokens[id] = t
		}
	}
	return nil
}

func (v *view) DeleteRefreshTokensForUser(_ context.Context, userID uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for id, t := range v.st().tokens {
		if t.UserID == userID {
			delete(v.st().tokens, id)
		}
	}
	return nil
}

func (v *view) DeleteStaleRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var n int64
	for id, t := range v.st().tokens {
		if t.Revoked || t.ExpiresAt.Before(now) {
			delete(v.st().tokens, id)
			n++
		}
	}
	return n, nil
}

// --- Email verification ---

func (v *view) CreateVerification(_ context.Context, ev *models.EmailVerification) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = v.s.now()
	v.st().verifications[ev.ID] = *ev
	return nil
}

func (v *view) ListActiveVerifications(_ context.Context, userID uuid.UUID, email string, now time.Time) ([]models.EmailVerification, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var out []models.EmailVerification
	for _, ev := range v.st().verifications {
		if ev.UserID == userID && ev.Email == email && ev.ExpiresAt.After(now) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) DeleteVerifications(_ context.Context, userID uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for id, ev := range v.st().verifications {
		if ev.UserID == userID {
			delete(v.st().verifications, id)
		}
	}
	return nil
}

func (v *view) DeleteExpiredVerifications(_ context.Context, now time.Time) (int64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var n int64
	for id, ev := range v.st().verifications {
		if ev.ExpiresAt.Before(now) {
			delete(v.st().verifications, id)
			n++
		}
	}
	return n, nil
}

// --- Projects ---

func (v *view) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	p, ok := v.st().projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) rolesOf(projectID uuid.UUID) []models.ProjectRole {
	var roles []models.ProjectRole
	for _, r := range v.st().roles {
		if r.ProjectID == projectID {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].CreatedAt.Before(roles[j].CreatedAt) })
	return roles
}

func (v *view) userRef(id uuid.UUID) *models.User {
	if u, ok := v.st().users[id]; ok {
		return &u
	}
	return nil
}

func (v *view) roleRef(id *uuid.UUID) *models.ProjectRole {
	if id == nil {
		return nil
	}
	if r, ok := v.st().roles[*id]; ok {
		return &r
	}
	return nil
}

func (v *view) GetProjectDetail(_ context.Context, slug string) (*models.Project, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, p := range v.st().projects {
		if p.Slug != slug {
			continue
		}
		p.Owner = v.userRef(p.OwnerID)
		p.Roles = v.rolesOf(p.ID)
		for _, m := range v.st().members {
			if m.ProjectID == p.ID {
				m.User = v.userRef(m.UserID)
				m.ProjectRole = v.roleRef(m.ProjectRoleID)
				p.Members = append(p.Members, m)
			}
		}
		sort.Slice(p.Members, func(i, j int) bool { return p.Members[i].CreatedAt.Before(p.Members[j].CreatedAt) })
		for _, a := range v.st().apps {
			if a.ProjectID == p.ID {
				a.User = v.userRef(a.UserID)
				roleID := a.RoleID
				a.Role = v.roleRef(&roleID)
				p.Applications = append(p.Applications, a)
			}
		}
		sort.Slice(p.Applications, func(i, j int) bool {
			return p.Applications[i].CreatedAt.After(p.Applications[j].CreatedAt)
		})
		return &p, nil
	}
	return nil, store.ErrNotFound
}

func (v *view) SlugExists(_ context.Context, slug string) (bool, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, p := range v.st().projects {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) CreateProject(_ context.Context, p *models.Project) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for _, other := range v.st().projects {
		if other.Slug == p.Slug {
			return store.ErrDuplicate
		}
	}
	p.CreatedAt = v.s.now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = models.ProjectActive
	}
	for i := range p.Roles {
		r := &p.Roles[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.ProjectID = p.ID
		r.CreatedAt = v.s.now()
		r.UpdatedAt = r.CreatedAt
		v.st().roles[r.ID] = *r
	}
	for i := range p.Members {
		m := &p.Members[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ProjectID = p.ID
		m.CreatedAt = v.s.now()
		m.UpdatedAt = m.CreatedAt
		v.st().members[m.ID] = *m
	}
	row := *p
	row.Roles, row.Members, row.Applications, row.Owner = nil, nil, nil, nil
	v.st().projects[p.ID] = row
	return nil
}

func (v *view) SaveProject(_ context.Context, p *models.Project) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	cur, ok := v.st().projects[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Title = p.Title
	cur.Description = p.Description
	cur.LongDescription = p.LongDescription
	cur.GitHubRepoURL = p.GitHubRepoURL
	cur.TimeCommitment = p.TimeCommitment
	cur.TechStack = p.TechStack
	cur.Tags = p.Tags
	cur.MaxMembers = p.MaxMembers
	cur.Status = p.Status
	cur.UpdatedAt = v.s.now()
	v.st().projects[p.ID] = cur
	return nil
}

func (v *view) UpdateRepoStats(_ context.Context, projectID uuid.UUID, st models.RepoStats) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	cur, ok := v.st().projects[projectID]
	if !ok {
		return store.ErrNotFound
	}
	cur.GitHub = st
	v.st().projects[projectID] = cur
	return nil
}

func (v *view) DeleteProject(_ context.Context, id uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if _, ok := v.st().projects[id]; !ok {
		return store.ErrNotFound
	}
	for aid, a := range v.st().apps {
		if a.ProjectID == id {
			delete(v.st().apps, aid)
		}
	}
	for mid, m := range v.st().members {
		if m.ProjectID == id {
			delete(v.st().members, mid)
		}
	}
	for rid, r := range v.st().roles {
		if r.ProjectID == id {
			delete(v.st().roles, rid)
		}
	}
	delete(v.st().projects, id)
	return nil
}

func (v *view) SearchProjects(_ context.Context, f store.ProjectFilter, offset, limit int) ([]models.Project, int64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	status := f.Status
	if status == "" {
		status = models.ProjectActive
	}
	text := strings.ToLower(f.Text)

	var matched []models.Project
	for _, p := range v.st().projects {
		if p.Status != status {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(p.Title), text) &&
			!strings.Contains(strings.ToLower(p.Description), text) {
			continue
		}
		if f.TechTag != "" && !contains(p.TechStack, f.TechTag) {
			continue
		}
		if f.TimeCommitment != "" && p.TimeCommitment != f.TimeCommitment {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[offset:end]
	for i := range page {
		page[i].Owner = v.userRef(page[i].OwnerID)
		page[i].Roles = v.rolesOf(page[i].ID)
	}
	return page, total, nil
}

func (v *view) ListProjectsByOwner(_ context.Context, ownerID uuid.UUID, status models.ProjectStatus) ([]models.Project, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var out []models.Project
	for _, p := range v.st().projects {
		if p.OwnerID != ownerID || (status != "" && p.Status != status) {
			continue
		}
		p.Roles = v.rolesOf(p.ID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Roles ---

func (v *view) ListRoles(_ context.Context, projectID uuid.UUID) ([]models.ProjectRole, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.rolesOf(projectID), nil
}

func (v *view) GetRole(_ context.Context, id uuid.UUID) (*models.ProjectRole, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	r, ok := v.st().roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

// LockProject is GetProject: transactions are already serialised.
func (v *view) LockProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return v.GetProject(ctx, id)
}

// LockRole is GetRole: transactions are already serialised.
func (v *view) LockRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error) {
	return v.GetRole(ctx, id)
}

func (v *view) CreateRole(_ context.Context, r *models.ProjectRole) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if _, ok := v.st().projects[r.ProjectID]; !ok {
		return store.ErrNotFound
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = v.s.now()
	r.UpdatedAt = r.CreatedAt
	v.st().roles[r.ID] = *r
	return nil
}

func (v *view) SaveRole(_ context.Context, r *models.ProjectRole) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	cur, ok := v.st().roles[r.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Title = r.Title
	cur.Description = r.Description
	cur.Count = r.Count
	cur.UpdatedAt = v.s.now()
	v.st().roles[r.ID] = cur
	return nil
}

func (v *view) DeleteRole(_ context.Context, id uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if _, ok := v.st().roles[id]; !ok {
		return store.ErrNotFound
	}
	for aid, a := range v.st().apps {
		if a.RoleID == id {
			delete(v.st().apps, aid)
		}
	}
	for mid, m := range v.st().members {
		if m.ProjectRoleID != nil && *m.ProjectRoleID == id {
			m.ProjectRoleID = nil
			v.st().members[mid] = m
		}
	}
	delete(v.st().roles, id)
	return nil
}

func (v *view) CountRoleMembers(_ context.Context, roleID uuid.UUID) (int64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var n int64
	for _, m := range v.st().members {
		if m.ProjectRoleID != nil && *m.ProjectRoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (v *view) SetRoleFilled(_ context.Context, roleID uuid.UUID, filled bool) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	r, ok := v.st().roles[roleID]
	if !ok {
		return nil
	}
	r.Filled = filled
	v.st().roles[roleID] = r
	return nil
}

// --- Memberships ---

func (v *view) GetMembership(_ context.Context, userID, projectID uuid.UUID) (*models.ProjectMember, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, m := range v.st().members {
		if m.UserID == userID && m.ProjectID == projectID {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) UpsertMembership(_ context.Context, m *models.ProjectMember) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for id, cur := range v.st().members {
		if cur.UserID == m.UserID && cur.ProjectID == m.ProjectID {
			cur.ProjectRoleID = m.ProjectRoleID
			cur.UpdatedAt = v.s.now()
			v.st().members[id] = cur
			return nil
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = v.s.now()
	m.UpdatedAt = m.CreatedAt
	v.st().members[m.ID] = *m
	return nil
}

func (v *view) DeleteMembershipsByUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var roleIDs []uuid.UUID
	for id, m := range v.st().members {
		if m.UserID != userID {
			continue
		}
		if m.ProjectRoleID != nil {
			roleIDs = append(roleIDs, *m.ProjectRoleID)
		}
		delete(v.st().members, id)
	}
	return roleIDs, nil
}

// --- Applications ---

func (v *view) GetApplication(_ context.Context, id uuid.UUID) (*models.Application, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	a, ok := v.st().apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (v *view) FindApplication(_ context.Context, userID, projectID, roleID uuid.UUID) (*models.Application, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, a := range v.st().apps {
		if a.UserID == userID && a.ProjectID == projectID && a.RoleID == roleID {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) CreateApplication(_ context.Context, a *models.Application) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, cur := range v.st().apps {
		if cur.UserID == a.UserID && cur.ProjectID == a.ProjectID && cur.RoleID == a.RoleID {
			return store.ErrDuplicate
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.ApplicationPending
	}
	a.CreatedAt = v.s.now()
	a.UpdatedAt = a.CreatedAt
	v.st().apps[a.ID] = *a
	return nil
}

func (v *view) TransitionApplication(_ context.Context, id uuid.UUID, from, to models.ApplicationStatus) (bool, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	a, ok := v.st().apps[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = v.s.now()
	v.st().apps[id] = a
	return true, nil
}

func (v *view) ListApplicationsByUser(_ context.Context, userID uuid.UUID) ([]models.Application, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	var out []models.Application
	for _, a := range v.st().apps {
		if a.UserID != userID {
			continue
		}
		if p, ok := v.st().projects[a.ProjectID]; ok {
			a.Project = &p
		}
		roleID := a.RoleID
		a.Role = v.roleRef(&roleID)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) DeleteApplicationsByUser(_ context.Context, userID uuid.UUID) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	for id, a := range v.st().apps {
		if a.UserID == userID {
			delete(v.st().apps, id)
		}
	}
	return nil
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
