// Package profile owns the user profile and persona configuration: it keeps the
// last copy the backend accepted in durable storage and synchronizes edits with
// the backend.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/kvstore"
	"vibemate.dev/vibemate/internal/logging"
)

// Storage keys. They match the names the web client uses so both can share a profile export.
const (
	KeyProfile  = "vibemate-user-data"
	KeyPersona  = "vibemate-ai-personality"
	KeyComplete = "vibemate-onboarding-complete"
	KeyUserID   = "userId"
)

// Backend is the remote side of the repository.
type Backend interface {
	SaveUserInfo(ctx context.Context, profile UserProfile) (UserProfile, error)
	SaveBot(ctx context.Context, persona PersonaConfig) (PersonaConfig, error)
}

// Repository persists state only after the backend acknowledged it, so storage
// always holds the last known good copy.
type Repository struct {
	store   kvstore.Store
	backend Backend
	logger  *zap.Logger

	mu       sync.RWMutex
	profile  *UserProfile
	persona  *PersonaConfig
	complete bool
}

func NewRepository(store kvstore.Store, backend Backend, logger *zap.Logger) *Repository {
	return &Repository{
		store:   store,
		backend: backend,
		logger:  logging.OrNop(logger).Named("profile"),
	}
}

// Load reads persisted state. Absent or unreadable entries come back as nil;
// Load itself never fails.
func (r *Repository) Load(ctx context.Context) (*UserProfile, *PersonaConfig, bool) {
	var (
		profile *UserProfile
		persona *PersonaConfig
	)

	if raw, ok := r.read(ctx, KeyProfile); ok {
		var p UserProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			r.logger.Warn("discarding unreadable profile", zap.Error(err))
		} else {
			profile = &p
		}
	}

	if raw, ok := r.read(ctx, KeyPersona); ok {
		var p PersonaConfig
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			r.logger.Warn("discarding unreadable persona", zap.Error(err))
		} else {
			persona = &p
		}
	}

	raw, _ := r.read(ctx, KeyComplete)
	complete := raw == "true"
	if complete && !completeState(profile, persona) {
		r.logger.Warn("ignoring completion flag without a valid profile and persona")
		complete = false
	}

	r.mu.Lock()
	r.profile, r.persona, r.complete = profile, persona, complete
	r.mu.Unlock()

	return cloneProfile(profile), clonePersona(persona), complete
}

func (r *Repository) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("failed to read persisted key", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return raw, ok
}

// SaveProfile sends the profile to the backend and persists the canonical copy
// it returns. On failure persisted state is untouched and a *SyncError is returned.
func (r *Repository) SaveProfile(ctx context.Context, profile UserProfile) (UserProfile, error) {
	saved, err := r.backend.SaveUserInfo(ctx, profile)
	if err != nil {
		r.logger.Warn("backend rejected profile", zap.Error(err))
		return UserProfile{}, &SyncError{Op: OpSaveProfile, Err: err}
	}
	if saved.UserID == "" {
		return UserProfile{}, &SyncError{Op: OpSaveProfile, Err: ErrMissingUserID}
	}

	if err := r.persistProfile(ctx, saved); err != nil {
		return UserProfile{}, err
	}
	r.logger.Debug("profile saved", zap.String("user_id", saved.UserID))
	return saved, nil
}

// SavePersona sends the persona to the backend. It refuses, without any network
// call, a persona whose UserID is empty or differs from the loaded profile.
func (r *Repository) SavePersona(ctx context.Context, persona PersonaConfig) (PersonaConfig, error) {
	if err := r.checkOwner(persona); err != nil {
		return PersonaConfig{}, &SyncError{Op: OpSavePersona, Err: err}
	}

	saved, err := r.backend.SaveBot(ctx, persona)
	if err != nil {
		r.logger.Warn("backend rejected persona", zap.Error(err))
		return PersonaConfig{}, &SyncError{Op: OpSavePersona, Err: err}
	}
	if saved.UserID != persona.UserID {
		return PersonaConfig{}, &SyncError{Op: OpSavePersona, Err: ErrUserIDMismatch}
	}

	if err := r.persistPersona(ctx, saved); err != nil {
		return PersonaConfig{}, err
	}
	r.logger.Debug("persona saved", zap.String("user_id", saved.UserID))
	return saved, nil
}

func (r *Repository) checkOwner(persona PersonaConfig) error {
	if persona.UserID == "" {
		return ErrMissingUserID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.profile == nil || r.profile.UserID != persona.UserID {
		return ErrUserIDMismatch
	}
	return nil
}

// Commit re-sends the profile and then the persona and marks onboarding complete
// only when both were accepted. A persona failure after an accepted profile
// leaves the profile saved and the flag unset; callers retry Commit as a whole.
func (r *Repository) Commit(ctx context.Context, profile UserProfile, persona PersonaConfig) error {
	if !profile.Complete() || !persona.Complete() {
		return &SyncError{Op: OpCommit, Err: ErrIncompleteDraft}
	}
	if profile.UserID == "" {
		return &SyncError{Op: OpCommit, Err: ErrMissingUserID}
	}
	if persona.UserID != profile.UserID {
		return &SyncError{Op: OpCommit, Err: ErrUserIDMismatch}
	}

	savedProfile, err := r.backend.SaveUserInfo(ctx, profile)
	if err != nil {
		r.logger.Warn("commit failed on profile", zap.Error(err))
		return &SyncError{Op: OpCommit, Err: err}
	}
	if savedProfile.UserID == "" {
		return &SyncError{Op: OpCommit, Err: ErrMissingUserID}
	}
	if err := r.persistProfile(ctx, savedProfile); err != nil {
		return err
	}

	persona.UserID = savedProfile.UserID
	savedPersona, err := r.backend.SaveBot(ctx, persona)
	if err != nil {
		r.logger.Warn("commit failed on persona", zap.Error(err))
		return &SyncError{Op: OpCommit, Err: err}
	}
	if savedPersona.UserID != savedProfile.UserID {
		return &SyncError{Op: OpCommit, Err: ErrUserIDMismatch}
	}
	if err := r.persistPersona(ctx, savedPersona); err != nil {
		return err
	}

	if err := r.store.Set(ctx, KeyComplete, "true"); err != nil {
		return fmt.Errorf("failed to persist completion flag: %w", err)
	}
	r.mu.Lock()
	r.complete = true
	r.mu.Unlock()

	r.logger.Info("onboarding committed", zap.String("user_id", savedProfile.UserID))
	return nil
}

// Reset forgets everything stored locally. It has no network effect and never fails;
// storage errors are logged.
func (r *Repository) Reset(ctx context.Context) {
	for _, key := range []string{KeyProfile, KeyPersona, KeyComplete, KeyUserID} {
		if err := r.store.Remove(ctx, key); err != nil {
			r.logger.Error("failed to remove persisted key", zap.String("key", key), zap.Error(err))
		}
	}

	r.mu.Lock()
	r.profile, r.persona, r.complete = nil, nil, false
	r.mu.Unlock()
	r.logger.Info("local state reset")
}

func (r *Repository) persistProfile(ctx context.Context, profile UserProfile) error {
	blob, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := r.store.Set(ctx, KeyProfile, string(blob)); err != nil {
		return fmt.Errorf("failed to persist profile: %w", err)
	}
	if err := r.store.Set(ctx, KeyUserID, profile.UserID); err != nil {
		return fmt.Errorf("failed to persist user id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = cloneProfile(&profile)

	// a persona that belongs to another user id can no longer be trusted
	if r.persona != nil && r.persona.UserID != profile.UserID {
		r.logger.Warn("dropping persona of a previous user id", zap.String("user_id", r.persona.UserID))
		r.persona = nil
		r.complete = false
		if err := r.store.Remove(ctx, KeyPersona); err != nil {
			return fmt.Errorf("failed to remove stale persona: %w", err)
		}
		if err := r.store.Remove(ctx, KeyComplete); err != nil {
			return fmt.Errorf("failed to remove stale completion flag: %w", err)
		}
	}
	return nil
}

func (r *Repository) persistPersona(ctx context.Context, persona PersonaConfig) error {
	blob, err := json.Marshal(persona)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}
	if err := r.store.Set(ctx, KeyPersona, string(blob)); err != nil {
		return fmt.Errorf("failed to persist persona: %w", err)
	}
	r.mu.Lock()
	r.persona = clonePersona(&persona)
	r.mu.Unlock()
	return nil
}

// Profile returns the last accepted profile, or nil.
func (r *Repository) Profile() *UserProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneProfile(r.profile)
}

// Persona returns the last accepted persona, or nil.
func (r *Repository) Persona() *PersonaConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePersona(r.persona)
}

func (r *Repository) Complete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete
}

// Export is the settings export document.
type Export struct {
	UserData      *UserProfile   `json:"userData" yaml:"userData"`
	AIPersonality *PersonaConfig `json:"aiPersonality" yaml:"aiPersonality"`
	ExportDate    time.Time      `json:"exportDate" yaml:"exportDate"`
}

func (r *Repository) Export(now time.Time) Export {
	return Export{
		UserData:      r.Profile(),
		AIPersonality: r.Persona(),
		ExportDate:    now.UTC(),
	}
}

func completeState(profile *UserProfile, persona *PersonaConfig) bool {
	return profile != nil && persona != nil &&
		profile.UserID != "" && profile.Complete() &&
		persona.Complete() && persona.UserID == profile.UserID
}

func cloneProfile(p *UserProfile) *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Age != nil {
		age := *p.Age
		c.Age = &age
	}
	return &c
}

func clonePersona(p *PersonaConfig) *PersonaConfig {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
