package profile

import "strings"

// UserProfile is the person using the app. UserID is assigned by the backend on
// the first successful save.
type UserProfile struct {
	UserID   string `json:"userId" yaml:"userId"`
	FullName string `json:"fullName" yaml:"fullName"`
	Age      *int   `json:"age,omitempty" yaml:"age,omitempty"`
	Gender   string `json:"gender" yaml:"gender"`
}

// Complete reports whether every user-entered field is filled in.
func (p UserProfile) Complete() bool {
	return strings.TrimSpace(p.FullName) != "" && p.Age != nil && strings.TrimSpace(p.Gender) != ""
}

// PersonaConfig configures the assistant. UserID is always copied from the
// owning UserProfile.
type PersonaConfig struct {
	UserID      string `json:"userId" yaml:"userId"`
	BotName     string `json:"botName" yaml:"botName"`
	Personality string `json:"personality" yaml:"personality"`
	Role        Role   `json:"role" yaml:"role"`
	Tone        Tone   `json:"tone" yaml:"tone"`
}

// Complete reports whether every persona field is filled in with a known role and tone.
// It does not look at UserID.
func (p PersonaConfig) Complete() bool {
	return strings.TrimSpace(p.BotName) != "" &&
		strings.TrimSpace(p.Personality) != "" &&
		p.Role.Valid() &&
		p.Tone.Valid()
}

type Role string

const (
	RoleBestFriend   Role = "Best Friend"
	RoleCrush        Role = "Crush"
	RoleLifeCoach    Role = "Life Coach"
	RoleTherapist    Role = "Therapist"
	RoleStudyBuddy   Role = "Study Buddy"
	RoleCodingMentor Role = "Coding Mentor"
	RoleMotivator    Role = "Motivator"
)

// Roles lists the roles in the order they are offered during setup.
var Roles = []Role{
	RoleBestFriend,
	RoleCrush,
	RoleLifeCoach,
	RoleTherapist,
	RoleStudyBuddy,
	RoleCodingMentor,
	RoleMotivator,
}

var roleDescriptions = map[Role]string{
	RoleBestFriend:   "Your loyal companion for daily chats",
	RoleCrush:        "Romantic and caring companion",
	RoleLifeCoach:    "Motivational and goal-oriented",
	RoleTherapist:    "Supportive and understanding",
	RoleStudyBuddy:   "Helpful with learning and academics",
	RoleCodingMentor: "Tech-savvy programming assistant",
	RoleMotivator:    "Energetic and encouraging",
}

func (r Role) Valid() bool {
	_, ok := roleDescriptions[r]
	return ok
}

func (r Role) Description() string {
	return roleDescriptions[r]
}

type Tone string

const (
	ToneCalm                  Tone = "Calm & Caring"
	ToneFunnySarcastic        Tone = "Funny & Sarcastic"
	ToneProfessionalDirect    Tone = "Professional & Direct"
	ToneSupportiveEncouraging Tone = "Supportive & Encouraging"
	TonePlayfulBubbly         Tone = "Playful & Bubbly"
)

var Tones = []Tone{
	ToneCalm,
	ToneFunnySarcastic,
	ToneProfessionalDirect,
	ToneSupportiveEncouraging,
	TonePlayfulBubbly,
}

func (t Tone) Valid() bool {
	for _, known := range Tones {
		if t == known {
			return true
		}
	}
	return false
}

// Genders offered during setup. Gender is free text on the wire; these are the suggestions.
var Genders = []string{"Male", "Female", "Prefer not to say"}
