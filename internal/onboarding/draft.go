package onboarding

import (
	"context"
	"slices"
	"sync"

	"vibemate.dev/vibemate/internal/profile"
)

type Field string

const (
	FieldFullName    Field = "fullName"
	FieldAge         Field = "age"
	FieldGender      Field = "gender"
	FieldBotName     Field = "botName"
	FieldPersonality Field = "personality"
	FieldRole        Field = "role"
	FieldTone        Field = "tone"
)

// Change is emitted after every draft mutation.
type Change struct {
	Step  Step
	Field Field
}

// Draft holds the in-memory, not yet committed profile and persona. Every setter
// notifies subscribers synchronously after the value is stored.
type Draft struct {
	mu          sync.Mutex
	profile     profile.UserProfile
	persona     profile.PersonaConfig
	subscribers []func(context.Context, Change)
}

func NewDraft(p *profile.UserProfile, persona *profile.PersonaConfig) *Draft {
	d := &Draft{}
	if p != nil {
		d.profile = *p
	}
	if persona != nil {
		d.persona = *persona
	}
	return d
}

func (d *Draft) Subscribe(fn func(context.Context, Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
}

func (d *Draft) Profile() profile.UserProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.profile
	if p.Age != nil {
		age := *p.Age
		p.Age = &age
	}
	return p
}

func (d *Draft) Persona() profile.PersonaConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persona
}

func (d *Draft) SetFullName(ctx context.Context, name string) {
	d.update(ctx, Change{StepIdentity, FieldFullName}, func() { d.profile.FullName = name })
}

// SetAge stores the age; nil clears it.
func (d *Draft) SetAge(ctx context.Context, age *int) {
	d.update(ctx, Change{StepIdentity, FieldAge}, func() {
		if age == nil {
			d.profile.Age = nil
			return
		}
		v := *age
		d.profile.Age = &v
	})
}

func (d *Draft) SetGender(ctx context.Context, gender string) {
	d.update(ctx, Change{StepIdentity, FieldGender}, func() { d.profile.Gender = gender })
}

func (d *Draft) SetBotName(ctx context.Context, name string) {
	d.update(ctx, Change{StepPersonalization, FieldBotName}, func() { d.persona.BotName = name })
}

func (d *Draft) SetPersonality(ctx context.Context, personality string) {
	d.update(ctx, Change{StepPersonalization, FieldPersonality}, func() { d.persona.Personality = personality })
}

func (d *Draft) SetRole(ctx context.Context, role profile.Role) {
	d.update(ctx, Change{StepPersonalization, FieldRole}, func() { d.persona.Role = role })
}

func (d *Draft) SetTone(ctx context.Context, tone profile.Tone) {
	d.update(ctx, Change{StepPersonalization, FieldTone}, func() { d.persona.Tone = tone })
}

// adoptUserID copies the backend-assigned id into both drafts. It is not a user
// edit and does not notify.
func (d *Draft) adoptUserID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profile.UserID = id
	d.persona.UserID = id
}

func (d *Draft) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profile = profile.UserProfile{}
	d.persona = profile.PersonaConfig{}
}

func (d *Draft) update(ctx context.Context, change Change, apply func()) {
	d.mu.Lock()
	apply()
	subs := slices.Clone(d.subscribers)
	d.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, change)
	}
}
