package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vibemate.dev/vibemate/internal/onboarding"
	"vibemate.dev/vibemate/internal/profile"
	"vibemate.dev/vibemate/internal/term"
)

func newSetupCmd(opts *options) *cobra.Command {
	var noChat bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up (or change) your profile and your companion",
		Long: `Walks through three steps: about you, your AI companion, and a final
confirmation. Each step is saved as soon as it is complete. On an existing
install the current values are offered as defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entered, err := a.runSetup(cmd.Context())
			if err != nil || !entered || noChat {
				return err
			}
			return a.runChat(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "Exit after setup instead of starting a chat")
	cmd.Flags().BoolVar(&opts.live, "live", true, "Print replies as they stream in")
	return cmd
}

// setupHost records where the machine wants to go next.
type setupHost struct {
	entered bool
	exited  bool
}

func (h *setupHost) EnterChat()      { h.entered = true }
func (h *setupHost) ExitOnboarding() { h.exited = true }

// runSetup drives the onboarding machine from the terminal. It reports whether
// setup finished and the chat should start.
func (a *app) runSetup(ctx context.Context) (bool, error) {
	a.repo.Load(ctx)
	host := &setupHost{}
	m := onboarding.NewMachine(a.repo, host,
		onboarding.WithNotifier(a.toaster),
		onboarding.WithLogger(a.logger),
	)

	for !m.Terminal() {
		step := m.Current()
		fmt.Fprintf(a.out, "\n%s %s\n",
			a.styles.Title.Render(fmt.Sprintf("Step %d of %d: %s", m.Index()+1, len(onboarding.Steps), step.Title)),
			a.styles.Muted.Render(fmt.Sprintf("%d%% complete", m.Progress())),
		)

		var err error
		switch step.Step {
		case onboarding.StepIdentity:
			err = a.promptIdentity(ctx, m.Draft())
		case onboarding.StepPersonalization:
			err = a.promptPersona(ctx, m.Draft())
		case onboarding.StepConfirmation:
			a.printConfirmation(m.Draft())
		}
		if err != nil {
			return false, fmt.Errorf("setup aborted: %w", err)
		}

		action, err := a.ask("[n]ext, [b]ack or [q]uit", "n")
		if err != nil {
			return false, fmt.Errorf("setup aborted: %w", err)
		}
		switch strings.ToLower(action) {
		case "b", "back":
			m.Retreat()
			if host.exited {
				return false, nil
			}
		case "q", "quit":
			return false, nil
		default:
			if !m.CanAdvance() {
				a.explainBlocked(m)
				continue
			}
			// a failed commit has already been toasted; stay and let the user retry
			_ = m.Advance(ctx)
		}
	}
	return host.entered, nil
}

func (a *app) promptIdentity(ctx context.Context, d *onboarding.Draft) error {
	cur := d.Profile()

	name, err := a.ask("Full name", cur.FullName)
	if err != nil {
		return err
	}
	d.SetFullName(ctx, name)

	for {
		current := ""
		if cur.Age != nil {
			current = strconv.Itoa(*cur.Age)
		}
		answer, err := a.ask("Age", current)
		if err != nil {
			return err
		}
		age, convErr := strconv.Atoi(answer)
		if convErr != nil || age < 1 || age > 150 {
			fmt.Fprintln(a.out, a.styles.Error.Render("Please enter your age as a number."))
			continue
		}
		d.SetAge(ctx, &age)
		break
	}

	gender, err := a.choose("Gender", profile.Genders, nil, cur.Gender)
	if err != nil {
		return err
	}
	d.SetGender(ctx, gender)
	return nil
}

func (a *app) promptPersona(ctx context.Context, d *onboarding.Draft) error {
	cur := d.Persona()

	name, err := a.ask("Companion name", cur.BotName)
	if err != nil {
		return err
	}
	d.SetBotName(ctx, name)

	personality, err := a.ask("Describe their personality", cur.Personality)
	if err != nil {
		return err
	}
	d.SetPersonality(ctx, personality)

	roles := make([]string, len(profile.Roles))
	descriptions := make([]string, len(profile.Roles))
	for i, r := range profile.Roles {
		roles[i] = string(r)
		descriptions[i] = r.Description()
	}
	role, err := a.choose("Role", roles, descriptions, string(cur.Role))
	if err != nil {
		return err
	}
	d.SetRole(ctx, profile.Role(role))

	tones := make([]string, len(profile.Tones))
	for i, t := range profile.Tones {
		tones[i] = string(t)
	}
	tone, err := a.choose("Tone", tones, nil, string(cur.Tone))
	if err != nil {
		return err
	}
	d.SetTone(ctx, profile.Tone(tone))

	p := d.Profile()
	fmt.Fprintln(a.out, a.styles.Subtitle.Render(profile.PreviewGreeting(&p, d.Persona())))
	return nil
}

func (a *app) printConfirmation(d *onboarding.Draft) {
	p := d.Profile()
	persona := d.Persona()
	fmt.Fprintln(a.out, a.renderer.Render(profileSummary(&p, &persona)))
	fmt.Fprintln(a.out, a.styles.Subtitle.Render(profile.PreviewGreeting(&p, persona)))
}

func (a *app) explainBlocked(m *onboarding.Machine) {
	err := m.LastError()
	if err == nil {
		fmt.Fprintln(a.out, a.styles.Error.Render("Please fill in every field to continue."))
		return
	}
	description := err.Error()
	var syncErr *profile.SyncError
	if errors.As(err, &syncErr) {
		description = syncErr.RetryPrompt()
	}
	a.toaster.Notify("Could not save", description)
}

func profileSummary(p *profile.UserProfile, persona *profile.PersonaConfig) string {
	var lines [][2]string
	if p != nil {
		age := "-"
		if p.Age != nil {
			age = strconv.Itoa(*p.Age)
		}
		lines = append(lines,
			[2]string{"Name", p.FullName},
			[2]string{"Age", age},
			[2]string{"Gender", p.Gender},
		)
	}
	if persona != nil {
		lines = append(lines,
			[2]string{"Companion", persona.BotName},
			[2]string{"Personality", persona.Personality},
			[2]string{"Role", string(persona.Role)},
			[2]string{"Tone", string(persona.Tone)},
		)
	}
	return term.Summary(lines)
}
