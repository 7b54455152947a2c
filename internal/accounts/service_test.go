package accounts

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
	"github.com/snipvault/snipvault/internal/shared"
)

type memRepo struct {
	users  map[int64]*User
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]*User), nextID: 1}
}

func (m *memRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *memRepo) Create(ctx context.Context, username, passwordHash string, role rbac.Role, status Status) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return nil, shared.ErrDuplicate
		}
	}
	u := &User{
		ID:             m.nextID,
		Username:       username,
		PasswordHash:   passwordHash,
		Role:           role,
		Status:         status,
		SessionVersion: 1,
		CreatedAt:      time.Now(),
	}
	m.nextID++
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memRepo) List(ctx context.Context, limit, offset int) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memRepo) IncrementLoginFailure(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, nil, shared.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		until := lockUntil
		u.LockedUntil = &until
	}
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (m *memRepo) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	at2 := at
	u.LastLoginAt = &at2
	return nil
}

func (m *memRepo) Unlock(ctx context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (m *memRepo) SetStatus(ctx context.Context, id int64, status Status) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.Status = status
	u.SessionVersion++
	cp := *u
	return &cp, nil
}

func (m *memRepo) SetRole(ctx context.Context, id int64, role rbac.Role) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.Role = role
	u.SessionVersion++
	cp := *u
	return &cp, nil
}

func (m *memRepo) BumpSessionVersion(ctx context.Context, id int64) (int64, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	u.SessionVersion++
	return u.SessionVersion, nil
}

func (m *memRepo) SetForcePasswordReset(ctx context.Context, id int64, force bool) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.ForcePasswordReset = force
	u.SessionVersion++
	cp := *u
	return &cp, nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type capturingAuditor struct {
	entries []audit.Entry
}

func (a *capturingAuditor) Record(ctx context.Context, e audit.Entry) {
	a.entries = append(a.entries, e)
}

func (a *capturingAuditor) last() audit.Entry {
	return a.entries[len(a.entries)-1]
}

type stubPolicy struct {
	f settings.Foundation
}

func (p *stubPolicy) Foundation(ctx context.Context) settings.Foundation { return p.f }

type fixture struct {
	repo    *memRepo
	auditor *capturingAuditor
	policy  *stubPolicy
	service *Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemRepo(),
		auditor: &capturingAuditor{},
		policy: &stubPolicy{f: settings.Foundation{
			RegistrationMode:   settings.RegistrationOpen,
			CommunityEnabled:   true,
			LockoutMaxAttempts: 2,
			LockoutDuration:    15 * time.Minute,
		}},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.repo, f.policy, f.auditor, slog.New(slog.DiscardHandler))
	f.service.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seedUser(t *testing.T, username, password string, role rbac.Role, status Status) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := f.repo.Create(context.Background(), username, string(hash), role, status)
	require.NoError(t, err)
	return u
}

var meta = audit.RequestMeta{IP: "203.0.113.7", UserAgent: "test"}

func TestRegisterBootstrapsFirstUser(t *testing.T) {
	f := newFixture(t)
	f.policy.f.RegistrationMode = settings.RegistrationClosed

	u, err := f.service.Register(context.Background(), "founder", "password123", meta)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperAdmin, u.Role)
	assert.Equal(t, StatusActive, u.Status)

	require.Len(t, f.auditor.entries, 1)
	e := f.auditor.last()
	assert.Equal(t, audit.ActionUserRegistered, e.Action)
	assert.Equal(t, true, e.Metadata["bootstrap"])
	assert.Equal(t, "203.0.113.7", e.IPAddress)
}

func TestRegisterRespectsMode(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "founder", "password123", rbac.RoleSuperAdmin, StatusActive)
	ctx := context.Background()

	f.policy.f.RegistrationMode = settings.RegistrationClosed
	_, err := f.service.Register(ctx, "alice", "password123", meta)
	assert.ErrorIs(t, err, shared.ErrRegistrationClosed)

	f.policy.f.RegistrationMode = settings.RegistrationApproval
	u, err := f.service.Register(ctx, "alice", "password123", meta)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, u.Status)
	assert.Equal(t, rbac.RoleUser, u.Role)

	f.policy.f.RegistrationMode = settings.RegistrationOpen
	u, err = f.service.Register(ctx, "bob", "password123", meta)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, u.Status)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "password123", rbac.RoleUser, StatusActive)
	f.seedUser(t, "founder", "password123", rbac.RoleSuperAdmin, StatusActive)

	_, err := f.service.Register(context.Background(), "alice", "password123", meta)
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestLoginSuccessResetsFailureState(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	ctx := context.Background()

	_, err := f.service.Login(ctx, "alice", "wrong", meta)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, 1, f.repo.users[u.ID].FailedLoginAttempts)

	got, err := f.service.Login(ctx, "alice", "hunter2hunter2", meta)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, f.now, *got.LastLoginAt)
	assert.Equal(t, 0, f.repo.users[u.ID].FailedLoginAttempts)

	e := f.auditor.last()
	assert.Equal(t, audit.ActionLoginSuccess, e.Action)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Login(context.Background(), "ghost", "whatever", meta)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.Len(t, f.auditor.entries, 1)
	e := f.auditor.last()
	assert.Equal(t, audit.ActionLoginFailed, e.Action)
	assert.Nil(t, e.ActorID)
	assert.Equal(t, "unknown_user", e.Metadata["reason"])
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	ctx := context.Background()

	_, err := f.service.Login(ctx, "alice", "wrong", meta)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Second failure reaches the configured maximum of 2 and locks.
	_, err = f.service.Login(ctx, "alice", "wrong", meta)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.NotNil(t, f.repo.users[u.ID].LockedUntil)
	assert.Equal(t, f.now.Add(15*time.Minute), *f.repo.users[u.ID].LockedUntil)

	e := f.auditor.last()
	assert.Equal(t, audit.ActionLoginFailed, e.Action)
	assert.Equal(t, true, e.Metadata["locked"])
}

func TestLoginWhileLockedRejectsCorrectPassword(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	until := f.now.Add(10 * time.Minute)
	f.repo.users[u.ID].LockedUntil = &until
	f.repo.users[u.ID].FailedLoginAttempts = 2
	ctx := context.Background()

	_, err := f.service.Login(ctx, "alice", "hunter2hunter2", meta)
	var locked *shared.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, until, locked.Until)

	// The attempt counter does not move while locked.
	assert.Equal(t, 2, f.repo.users[u.ID].FailedLoginAttempts)
	assert.Equal(t, audit.ActionLoginLocked, f.auditor.last().Action)
}

func TestLoginAfterLockoutExpiry(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	until := f.now.Add(10 * time.Minute)
	f.repo.users[u.ID].LockedUntil = &until
	f.repo.users[u.ID].FailedLoginAttempts = 2

	f.now = f.now.Add(11 * time.Minute)
	got, err := f.service.Login(context.Background(), "alice", "hunter2hunter2", meta)
	require.NoError(t, err)
	assert.Nil(t, got.LockedUntil)
	assert.Equal(t, 0, got.FailedLoginAttempts)
}

func TestLoginRejectsNonActiveStatus(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "pending", "hunter2hunter2", rbac.RoleUser, StatusPending)
	f.seedUser(t, "banned", "hunter2hunter2", rbac.RoleUser, StatusSuspended)
	ctx := context.Background()

	_, err := f.service.Login(ctx, "pending", "hunter2hunter2", meta)
	assert.ErrorIs(t, err, shared.ErrAccountPending)
	assert.Equal(t, "pending", f.auditor.last().Metadata["reason"])

	_, err = f.service.Login(ctx, "banned", "hunter2hunter2", meta)
	assert.ErrorIs(t, err, shared.ErrAccountSuspended)
	assert.Equal(t, "suspended", f.auditor.last().Metadata["reason"])
}

func TestAdminUnlockRestoresLogin(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin", "password123", rbac.RoleAdmin, StatusActive)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	until := f.now.Add(10 * time.Minute)
	f.repo.users[u.ID].LockedUntil = &until
	f.repo.users[u.ID].FailedLoginAttempts = 2
	ctx := context.Background()

	require.NoError(t, f.service.Unlock(ctx, admin.ID, u.ID, meta))
	assert.Equal(t, audit.ActionUserUnlock, f.auditor.last().Action)

	got, err := f.service.Login(ctx, "alice", "hunter2hunter2", meta)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
}

func TestSelfMutationGuards(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin", "password123", rbac.RoleAdmin, StatusActive)
	ctx := context.Background()

	_, err := f.service.Suspend(ctx, admin.ID, admin.ID, meta)
	assert.ErrorIs(t, err, shared.ErrSelfMutation)

	_, err = f.service.SetRole(ctx, admin.ID, admin.ID, rbac.RoleUser, meta)
	assert.ErrorIs(t, err, shared.ErrSelfMutation)

	_, err = f.service.SetStatus(ctx, admin.ID, admin.ID, StatusSuspended, meta)
	assert.ErrorIs(t, err, shared.ErrSelfMutation)

	assert.ErrorIs(t, f.service.ResetSessions(ctx, admin.ID, admin.ID, meta), shared.ErrSelfMutation)
	assert.ErrorIs(t, f.service.Delete(ctx, admin.ID, admin.ID, meta), shared.ErrSelfMutation)

	_, err = f.service.ForcePasswordReset(ctx, admin.ID, admin.ID, true, meta)
	assert.ErrorIs(t, err, shared.ErrSelfMutation)

	// Refused mutations leave no audit trace.
	assert.Empty(t, f.auditor.entries)
}

func TestAdminMutationsBumpSessionVersion(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin", "password123", rbac.RoleAdmin, StatusActive)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusActive)
	ctx := context.Background()

	updated, err := f.service.SetRole(ctx, admin.ID, u.ID, rbac.RoleModerator, meta)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.SessionVersion)
	assert.Equal(t, audit.ActionUserRoleChange, f.auditor.last().Action)
	assert.Equal(t, "USER", f.auditor.last().Metadata["from"])
	assert.Equal(t, "MODERATOR", f.auditor.last().Metadata["to"])

	updated, err = f.service.Suspend(ctx, admin.ID, u.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.SessionVersion)

	require.NoError(t, f.service.ResetSessions(ctx, admin.ID, u.ID, meta))
	assert.Equal(t, int64(4), f.repo.users[u.ID].SessionVersion)
	assert.Equal(t, int64(4), f.auditor.last().Metadata["sessionVersion"])
}

func TestApproveActivatesPendingAccount(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin", "password123", rbac.RoleAdmin, StatusActive)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusPending)
	ctx := context.Background()

	updated, err := f.service.Approve(ctx, admin.ID, u.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)
	assert.Equal(t, audit.ActionUserApprove, f.auditor.last().Action)
	assert.Equal(t, "PENDING", f.auditor.last().Metadata["from"])

	_, err = f.service.Login(ctx, "alice", "hunter2hunter2", meta)
	assert.NoError(t, err)
}

func TestExactlyOneAuditEntryPerMutation(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin", "password123", rbac.RoleAdmin, StatusActive)
	u := f.seedUser(t, "alice", "hunter2hunter2", rbac.RoleUser, StatusPending)
	ctx := context.Background()

	before := len(f.auditor.entries)
	_, err := f.service.Approve(ctx, admin.ID, u.ID, meta)
	require.NoError(t, err)
	_, err = f.service.Suspend(ctx, admin.ID, u.ID, meta)
	require.NoError(t, err)
	_, err = f.service.Unsuspend(ctx, admin.ID, u.ID, meta)
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(ctx, admin.ID, u.ID, meta))

	assert.Equal(t, before+4, len(f.auditor.entries))
}

func TestAnonymousReader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reader, err := f.service.AnonymousReader(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReaderUsername, reader.Username)
	assert.Equal(t, rbac.RoleReadOnly, reader.Role)
	assert.Equal(t, StatusActive, reader.Status)

	// Subsequent calls return the same account instead of creating another.
	again, err := f.service.AnonymousReader(ctx)
	require.NoError(t, err)
	assert.Equal(t, reader.ID, again.ID)
	assert.Equal(t, int64(1), f.repo.users[reader.ID].SessionVersion)
}
