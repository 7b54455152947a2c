package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
	"github.com/snipvault/snipvault/internal/shared"
)

// PolicySource supplies registration and lockout policy.
type PolicySource interface {
	Foundation(ctx context.Context) settings.Foundation
}

// Auditor records sensitive outcomes.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service implements the account lifecycle and login state machine. All
// decisions are synchronous, local checks against the durable user record;
// their outcomes are terminal-for-now and surfaced verbatim, never retried.
type Service struct {
	repo    Repository
	policy  PolicySource
	auditor Auditor
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, policy PolicySource, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		policy:  policy,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an account. The very first account bootstraps the
// deployment as an active SUPER_ADMIN; afterwards the registration mode
// decides between ACTIVE, PENDING and outright refusal.
func (s *Service) Register(ctx context.Context, username, password string, meta audit.RequestMeta) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash password: %w", err)
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	role := rbac.RoleUser
	status := StatusActive
	bootstrap := count == 0
	if bootstrap {
		role = rbac.RoleSuperAdmin
	} else {
		switch s.policy.Foundation(ctx).RegistrationMode {
		case settings.RegistrationClosed:
			return nil, shared.ErrRegistrationClosed
		case settings.RegistrationApproval:
			status = StatusPending
		}
	}

	user, err := s.repo.Create(ctx, username, string(hash), role, status)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Entry{
		ActorID:    &user.ID,
		Action:     audit.ActionUserRegistered,
		TargetType: "user",
		TargetID:   strconv.FormatInt(user.ID, 10),
		Metadata: map[string]any{
			"status":    string(user.Status),
			"role":      string(user.Role),
			"bootstrap": bootstrap,
		},
	}, meta)
	return user, nil
}

// Login runs the lockout-aware login state machine. A locked account is
// rejected before the password is checked and without consuming another
// attempt, so lockout state alone gates access during the window.
func (s *Service) Login(ctx context.Context, username, password string, meta audit.RequestMeta) (*User, error) {
	now := s.now()
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.record(ctx, audit.Entry{
				Action:   audit.ActionLoginFailed,
				Metadata: map[string]any{"username": username, "reason": "unknown_user"},
			}, meta)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Locked(now) {
		s.record(ctx, audit.Entry{
			ActorID:    &user.ID,
			Action:     audit.ActionLoginLocked,
			TargetType: "user",
			TargetID:   strconv.FormatInt(user.ID, 10),
		}, meta)
		return nil, shared.NewLockedError(*user.LockedUntil)
	}

	switch user.Status {
	case StatusPending:
		s.recordLoginFailure(ctx, user, "pending", meta)
		return nil, shared.ErrAccountPending
	case StatusSuspended:
		s.recordLoginFailure(ctx, user, "suspended", meta)
		return nil, shared.ErrAccountSuspended
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		policy := s.policy.Foundation(ctx)
		attempts, lockedUntil, ferr := s.repo.IncrementLoginFailure(ctx, user.ID,
			policy.LockoutMaxAttempts, now.Add(policy.LockoutDuration))
		if ferr != nil {
			return nil, ferr
		}
		s.record(ctx, audit.Entry{
			ActorID:    &user.ID,
			Action:     audit.ActionLoginFailed,
			TargetType: "user",
			TargetID:   strconv.FormatInt(user.ID, 10),
			Metadata:   map[string]any{"attempts": attempts, "locked": lockedUntil != nil},
		}, meta)
		return nil, shared.ErrInvalidCredentials
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	s.record(ctx, audit.Entry{
		ActorID:    &user.ID,
		Action:     audit.ActionLoginSuccess,
		TargetType: "user",
		TargetID:   strconv.FormatInt(user.ID, 10),
	}, meta)
	return user, nil
}

// Approve activates a PENDING account.
func (s *Service) Approve(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) (*User, error) {
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetStatus(ctx, targetID, StatusActive)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserApprove,
		map[string]any{"from": string(target.Status)}, meta)
	return updated, nil
}

// Suspend moves an account to SUSPENDED. Refused when the target is the
// acting admin, so an admin cannot lock themselves out.
func (s *Service) Suspend(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) (*User, error) {
	if actorID == targetID {
		return nil, shared.ErrSelfMutation
	}
	updated, err := s.repo.SetStatus(ctx, targetID, StatusSuspended)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserSuspend, nil, meta)
	return updated, nil
}

// Unsuspend moves an account back to ACTIVE.
func (s *Service) Unsuspend(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) (*User, error) {
	updated, err := s.repo.SetStatus(ctx, targetID, StatusActive)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserUnsuspend, nil, meta)
	return updated, nil
}

// SetStatus sets an explicit lifecycle status. Refused on self.
func (s *Service) SetStatus(ctx context.Context, actorID, targetID int64, status Status, meta audit.RequestMeta) (*User, error) {
	if actorID == targetID {
		return nil, shared.ErrSelfMutation
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetStatus(ctx, targetID, status)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserStatusChange,
		map[string]any{"from": string(target.Status), "to": string(status)}, meta)
	return updated, nil
}

// SetRole changes the target's role. Refused on self.
func (s *Service) SetRole(ctx context.Context, actorID, targetID int64, role rbac.Role, meta audit.RequestMeta) (*User, error) {
	if actorID == targetID {
		return nil, shared.ErrSelfMutation
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetRole(ctx, targetID, role)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserRoleChange,
		map[string]any{"from": string(target.Role), "to": string(role)}, meta)
	return updated, nil
}

// Unlock clears the lockout window and the failure counter.
func (s *Service) Unlock(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) error {
	if err := s.repo.Unlock(ctx, targetID); err != nil {
		return err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserUnlock, nil, meta)
	return nil
}

// ResetSessions invalidates every outstanding credential for the target by
// bumping its session version. Refused on self.
func (s *Service) ResetSessions(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) error {
	if actorID == targetID {
		return shared.ErrSelfMutation
	}
	version, err := s.repo.BumpSessionVersion(ctx, targetID)
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserSessionsReset,
		map[string]any{"sessionVersion": version}, meta)
	return nil
}

// ForcePasswordReset toggles the forced-reset flag. Refused on self.
func (s *Service) ForcePasswordReset(ctx context.Context, actorID, targetID int64, force bool, meta audit.RequestMeta) (*User, error) {
	if actorID == targetID {
		return nil, shared.ErrSelfMutation
	}
	updated, err := s.repo.SetForcePasswordReset(ctx, targetID, force)
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserForceReset,
		map[string]any{"force": force}, meta)
	return updated, nil
}

// Delete removes the target account. Refused on self.
func (s *Service) Delete(ctx context.Context, actorID, targetID int64, meta audit.RequestMeta) error {
	if actorID == targetID {
		return shared.ErrSelfMutation
	}
	if err := s.repo.Delete(ctx, targetID); err != nil {
		return err
	}
	s.recordAdmin(ctx, actorID, targetID, audit.ActionUserDelete, nil, meta)
	return nil
}

// List returns accounts for the admin listing.
func (s *Service) List(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Get fetches a single account.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// AnonymousReader returns the singleton read-only identity used when the
// deployment disables individual accounts, creating it lazily. The reader
// is exempt from the lockout and session-version machinery.
func (s *Service) AnonymousReader(ctx context.Context) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, ReaderUsername)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	// The password hash is random and never matched, so the reader cannot
	// be logged into directly.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawStdEncoding.EncodeToString(buf)), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	user, err = s.repo.Create(ctx, ReaderUsername, string(hash), rbac.RoleReadOnly, StatusActive)
	if errors.Is(err, shared.ErrDuplicate) {
		// Lost the creation race to a concurrent request.
		return s.repo.FindByUsername(ctx, ReaderUsername)
	}
	return user, err
}

func (s *Service) record(ctx context.Context, e audit.Entry, meta audit.RequestMeta) {
	if s.auditor == nil {
		return
	}
	e.IPAddress = meta.IP
	e.UserAgent = meta.UserAgent
	s.auditor.Record(ctx, e)
}

func (s *Service) recordLoginFailure(ctx context.Context, user *User, reason string, meta audit.RequestMeta) {
	s.record(ctx, audit.Entry{
		ActorID:    &user.ID,
		Action:     audit.ActionLoginFailed,
		TargetType: "user",
		TargetID:   strconv.FormatInt(user.ID, 10),
		Metadata:   map[string]any{"reason": reason},
	}, meta)
}

func (s *Service) recordAdmin(ctx context.Context, actorID, targetID int64, action string, metadata map[string]any, meta audit.RequestMeta) {
	s.record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     action,
		TargetType: "user",
		TargetID:   strconv.FormatInt(targetID, 10),
		Metadata:   metadata,
	}, meta)
}
