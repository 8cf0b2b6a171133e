// Package onboarding sequences the guided setup: it gates each step on the
// validity of the draft, auto-saves a step once its draft becomes valid and
// commits profile and persona together on the last step.
package onboarding

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/profile"
)

type Step int

const (
	StepIdentity Step = iota
	StepPersonalization
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepPersonalization:
		return "personalization"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

type StepDescriptor struct {
	Step  Step
	Title string
}

var Steps = []StepDescriptor{
	{Step: StepIdentity, Title: "About You"},
	{Step: StepPersonalization, Title: "AI Companion"},
	{Step: StepConfirmation, Title: "All Set!"},
}

// Repository is the part of profile.Repository the machine drives.
type Repository interface {
	Profile() *profile.UserProfile
	Persona() *profile.PersonaConfig
	SaveProfile(ctx context.Context, p profile.UserProfile) (profile.UserProfile, error)
	SavePersona(ctx context.Context, p profile.PersonaConfig) (profile.PersonaConfig, error)
	Commit(ctx context.Context, p profile.UserProfile, persona profile.PersonaConfig) error
	Reset(ctx context.Context)
}

// Host is the presentation layer hosting the setup.
type Host interface {
	// EnterChat is called once, after a successful commit.
	EnterChat()
	// ExitOnboarding is called when the user goes back from the first step.
	ExitOnboarding()
}

type Notifier interface {
	Notify(title, description string)
}

type Machine struct {
	repo     Repository
	host     Host
	notifier Notifier
	logger   *zap.Logger
	draft    *Draft

	mu       sync.Mutex
	index    int
	synced   map[Step]bool
	terminal bool
	lastErr  error
}

type Option func(*Machine)

func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// NewMachine starts at the first step. Drafts are seeded from whatever the
// repository already holds, so a completed install can be reconfigured.
func NewMachine(repo Repository, host Host, opts ...Option) *Machine {
	m := &Machine{
		repo:   repo,
		host:   host,
		synced: make(map[Step]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger).Named("onboarding")
	if m.host == nil {
		m.host = nopHost{}
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}

	saved := repo.Profile()
	persona := repo.Persona()
	m.draft = NewDraft(saved, persona)
	if saved != nil && saved.UserID != "" {
		m.draft.adoptUserID(saved.UserID)
		m.synced[StepIdentity] = true
		if persona != nil && persona.UserID == saved.UserID {
			m.synced[StepPersonalization] = true
		}
	}
	m.draft.Subscribe(m.onDraftChanged)
	return m
}

func (m *Machine) Draft() *Draft {
	return m.draft
}

func (m *Machine) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *Machine) Current() StepDescriptor {
	return Steps[m.Index()]
}

// Progress is the completion percentage shown next to the step title.
func (m *Machine) Progress() int {
	return int(math.Round(float64(m.Index()+1) / float64(len(Steps)) * 100))
}

func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal
}

// LastError is the most recent auto-save or commit failure, cleared by the next success.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Machine) CanAdvance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canAdvanceLocked()
}

func (m *Machine) canAdvanceLocked() bool {
	if m.terminal {
		return false
	}
	switch Steps[m.index].Step {
	case StepIdentity:
		saved := m.repo.Profile()
		return m.draft.Profile().Complete() &&
			saved != nil && saved.UserID != "" && saved.Complete()
	case StepPersonalization:
		if !m.personaDraftValid(m.draft.Persona()) {
			return false
		}
		saved := m.repo.Persona()
		owner := m.repo.Profile()
		return saved != nil && owner != nil && saved.Complete() && saved.UserID == owner.UserID
	case StepConfirmation:
		return true
	default:
		return false
	}
}

// Advance moves to the next step, or commits on the last one. It does nothing
// when the current step cannot be left yet. A failed commit keeps the machine on
// the last step and returns the *profile.SyncError.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	if !m.canAdvanceLocked() {
		m.mu.Unlock()
		return nil
	}
	if m.index < len(Steps)-1 {
		m.index++
		m.logger.Debug("advanced", zap.Stringer("step", Steps[m.index].Step))
		m.mu.Unlock()
		return nil
	}

	// The lock stays held across the commit so a second Advance cannot commit
	// twice; readers wait for the sync to finish.
	err := m.repo.Commit(ctx, m.draft.Profile(), m.draft.Persona())
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn("commit failed", zap.Error(err))
		m.notifier.Notify("Setup failed", retryPrompt(err))
		return err
	}
	m.lastErr = nil
	m.terminal = true
	m.mu.Unlock()

	m.logger.Info("onboarding complete")
	m.notifier.Notify("You're all set!", "Your AI companion is ready to meet you.")
	m.host.EnterChat()
	return nil
}

// Retreat goes one step back, or leaves the setup from the first step.
func (m *Machine) Retreat() {
	m.mu.Lock()
	if m.index > 0 && !m.terminal {
		m.index--
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.host.ExitOnboarding()
}

// Reset clears local state and re-arms auto-save for every step.
func (m *Machine) Reset(ctx context.Context) {
	m.repo.Reset(ctx)
	m.draft.clear()

	m.mu.Lock()
	m.index = 0
	m.terminal = false
	m.lastErr = nil
	m.synced = make(map[Step]bool)
	m.mu.Unlock()
}

func (m *Machine) onDraftChanged(ctx context.Context, change Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminal {
		return
	}

	switch change.Step {
	case StepIdentity:
		m.maybeSaveIdentityLocked(ctx)
	case StepPersonalization:
		m.maybeSavePersonaLocked(ctx)
	}
}

// auto-save fires once per step until Reset. The caller holds m.mu across the
// backend call, so saves for one draft never overlap.
func (m *Machine) maybeSaveIdentityLocked(ctx context.Context) {
	if m.synced[StepIdentity] {
		return
	}
	draft := m.draft.Profile()
	if !draft.Complete() {
		return
	}

	saved, err := m.repo.SaveProfile(ctx, draft)
	if err != nil {
		m.lastErr = err
		m.logger.Warn("profile auto-save failed", zap.Error(err))
		return
	}
	m.lastErr = nil
	m.synced[StepIdentity] = true
	m.draft.adoptUserID(saved.UserID)
	m.logger.Debug("profile auto-saved", zap.String("user_id", saved.UserID))

	// the persona draft may have been waiting for a user id
	m.maybeSavePersonaLocked(ctx)
}

func (m *Machine) maybeSavePersonaLocked(ctx context.Context) {
	if m.synced[StepPersonalization] {
		return
	}
	draft := m.draft.Persona()
	if !m.personaDraftValid(draft) {
		return
	}

	if _, err := m.repo.SavePersona(ctx, draft); err != nil {
		m.lastErr = err
		m.logger.Warn("persona auto-save failed", zap.Error(err))
		return
	}
	m.lastErr = nil
	m.synced[StepPersonalization] = true
	m.logger.Debug("persona auto-saved")
}

func (m *Machine) personaDraftValid(p profile.PersonaConfig) bool {
	if !p.Complete() || p.UserID == "" {
		return false
	}
	owner := m.repo.Profile()
	return owner != nil && owner.UserID == p.UserID
}

func retryPrompt(err error) string {
	var syncErr *profile.SyncError
	if errors.As(err, &syncErr) {
		return syncErr.RetryPrompt()
	}
	return "Something went wrong. Please try again."
}

type nopHost struct{}

func (nopHost) EnterChat()      {}
func (nopHost) ExitOnboarding() {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}
