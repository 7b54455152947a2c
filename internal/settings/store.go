package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snipvault/snipvault/internal/shared"
)

// DefaultCacheTTL is the freshness window for cached reads.
const DefaultCacheTTL = 5 * time.Second

type settingEntry struct {
	value     Setting
	present   bool
	fetchedAt time.Time
}

type flagEntry struct {
	value     Flag
	present   bool
	fetchedAt time.Time
}

// Store serves settings reads from an in-process cache with a fixed
// freshness window and writes through to durable storage. The cache is
// process-local on purpose: settings are administrative and low-frequency,
// so bounded staleness across instances is an accepted tradeoff for
// avoiding a storage round trip on every gateway decision.
type Store struct {
	repo   Repository
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	settings map[string]settingEntry
	flags    map[string]flagEntry
	group    singleflight.Group
}

// NewStore constructs a Store with the default freshness window.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	return NewStoreWithTTL(repo, logger, DefaultCacheTTL)
}

// NewStoreWithTTL constructs a Store with an explicit freshness window.
func NewStoreWithTTL(repo Repository, logger *slog.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		repo:     repo,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		settings: make(map[string]settingEntry),
		flags:    make(map[string]flagEntry),
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) lookup(ctx context.Context, key string) (Setting, bool, error) {
	now := s.now()
	s.mu.RLock()
	entry, ok := s.settings[key]
	s.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < s.ttl {
		return entry.value, entry.present, nil
	}

	v, err, _ := s.group.Do("setting:"+key, func() (any, error) {
		fresh := settingEntry{fetchedAt: s.now()}
		value, err := s.repo.GetSetting(ctx, key)
		switch {
		case err == nil:
			fresh.value = value
			fresh.present = true
		case errors.Is(err, shared.ErrNotFound):
			// Cache the miss too; absent keys are served from fallbacks.
		default:
			return settingEntry{}, err
		}
		s.mu.Lock()
		s.settings[key] = fresh
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return Setting{}, false, err
	}
	entry = v.(settingEntry)
	return entry.value, entry.present, nil
}

func (s *Store) lookupFlag(ctx context.Context, key string) (Flag, bool, error) {
	now := s.now()
	s.mu.RLock()
	entry, ok := s.flags[key]
	s.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < s.ttl {
		return entry.value, entry.present, nil
	}

	v, err, _ := s.group.Do("flag:"+key, func() (any, error) {
		fresh := flagEntry{fetchedAt: s.now()}
		value, err := s.repo.GetFlag(ctx, key)
		switch {
		case err == nil:
			fresh.value = value
			fresh.present = true
		case errors.Is(err, shared.ErrNotFound):
		default:
			return flagEntry{}, err
		}
		s.mu.Lock()
		s.flags[key] = fresh
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return Flag{}, false, err
	}
	entry = v.(flagEntry)
	return entry.value, entry.present, nil
}

// GetString returns the setting value, or fallback when the key is absent.
// Storage errors are logged and the fallback returned, so a read never
// takes a gateway decision down with it.
func (s *Store) GetString(ctx context.Context, key, fallback string) string {
	value, present, err := s.lookup(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("settings read", slog.String("key", key), slog.Any("error", err))
		}
		return fallback
	}
	if !present {
		return fallback
	}
	return value.Value
}

// GetNumber returns the setting parsed as an integer; parse failures and
// absent keys fall back to the caller-supplied default.
func (s *Store) GetNumber(ctx context.Context, key string, fallback int) int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// GetBool returns the setting interpreted against the fixed truthy token
// set; absent keys fall back to the caller-supplied default.
func (s *Store) GetBool(ctx context.Context, key string, fallback bool) bool {
	value, present, err := s.lookup(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("settings read", slog.String("key", key), slog.Any("error", err))
		}
		return fallback
	}
	if !present {
		return fallback
	}
	return Truthy(value.Value)
}

// SetString writes a setting synchronously and refreshes its cache entry,
// making the write immediately visible to this instance.
func (s *Store) SetString(ctx context.Context, key, value, updatedBy string) (Setting, error) {
	if err := validateSettingValue(key, value); err != nil {
		return Setting{}, err
	}
	stored, err := s.repo.UpsertSetting(ctx, key, value, updatedBy, s.now())
	if err != nil {
		return Setting{}, err
	}
	s.mu.Lock()
	s.settings[key] = settingEntry{value: stored, present: true, fetchedAt: s.now()}
	s.mu.Unlock()
	return stored, nil
}

// GetFlag returns the feature flag state, or fallback when absent.
func (s *Store) GetFlag(ctx context.Context, key string, fallback bool) bool {
	value, present, err := s.lookupFlag(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("flag read", slog.String("key", key), slog.Any("error", err))
		}
		return fallback
	}
	if !present {
		return fallback
	}
	return value.Enabled
}

// SetFlag writes a feature flag synchronously and refreshes its cache entry.
func (s *Store) SetFlag(ctx context.Context, key string, enabled bool, description, updatedBy string) (Flag, error) {
	stored, err := s.repo.UpsertFlag(ctx, key, enabled, description, updatedBy, s.now())
	if err != nil {
		return Flag{}, err
	}
	s.mu.Lock()
	s.flags[key] = flagEntry{value: stored, present: true, fetchedAt: s.now()}
	s.mu.Unlock()
	return stored, nil
}

// GetByPrefix lists settings under a key prefix, reading through to storage.
func (s *Store) GetByPrefix(ctx context.Context, prefix string) ([]Setting, error) {
	return s.repo.ListSettings(ctx, prefix)
}

// GetAll lists every setting, reading through to storage.
func (s *Store) GetAll(ctx context.Context) ([]Setting, error) {
	return s.repo.ListSettings(ctx, "")
}

// ListFlags lists every feature flag, reading through to storage.
func (s *Store) ListFlags(ctx context.Context) ([]Flag, error) {
	return s.repo.ListFlags(ctx)
}

// Foundation returns the gateway-relevant settings in one read: registration
// mode, community mode, maintenance mode and the full lockout and rate-limit
// policy.
func (s *Store) Foundation(ctx context.Context) Foundation {
	return Foundation{
		RegistrationMode:   NormalizeRegistrationMode(s.GetString(ctx, KeyRegistrationMode, RegistrationOpen)),
		CommunityEnabled:   s.GetBool(ctx, KeyCommunityMode, true),
		MaintenanceEnabled: s.GetBool(ctx, KeyMaintenanceMode, false),
		LockoutMaxAttempts: s.GetNumber(ctx, KeyLockoutMaxAttempts, 5),
		LockoutDuration:    time.Duration(s.GetNumber(ctx, KeyLockoutDurationMinutes, 15)) * time.Minute,
		RateLimitWindow:    time.Duration(s.GetNumber(ctx, KeyRateLimitWindowMS, 60000)) * time.Millisecond,
		AuthMax:            s.GetNumber(ctx, KeyRateLimitAuthMax, 10),
		PublicMax:          s.GetNumber(ctx, KeyRateLimitPublicMax, 60),
		GeneralMax:         s.GetNumber(ctx, KeyRateLimitGeneralMax, 120),
	}
}

// Seed installs the documented defaults without overwriting operator values.
func (s *Store) Seed(ctx context.Context) error {
	return s.repo.SeedDefaults(ctx)
}

func validateSettingValue(key, value string) error {
	switch key {
	case KeyLockoutMaxAttempts, KeyLockoutDurationMinutes,
		KeyRateLimitWindowMS, KeyRateLimitAuthMax,
		KeyRateLimitPublicMax, KeyRateLimitGeneralMax:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", shared.ErrConfigValidation, key)
		}
	case KeyRegistrationMode:
		switch value {
		case RegistrationOpen, RegistrationApproval, RegistrationClosed:
		default:
			return fmt.Errorf("%w: %s must be OPEN, APPROVAL or CLOSED", shared.ErrConfigValidation, key)
		}
	}
	return nil
}
