package profile

import (
	"fmt"
	"strings"
)

// PreviewGreeting is the tone-flavoured introduction shown while the persona is
// being designed.
func PreviewGreeting(profile *UserProfile, persona PersonaConfig) string {
	fullName := "there"
	if profile != nil && strings.TrimSpace(profile.FullName) != "" {
		fullName = profile.FullName
	}
	botName := persona.BotName
	if strings.TrimSpace(botName) == "" {
		botName = "your AI companion"
	}

	switch persona.Tone {
	case ToneCalm:
		return fmt.Sprintf("Hi %s, I'm %s. I'm here to listen and support you through anything. How are you feeling today? 🌸", fullName, botName)
	case ToneFunnySarcastic:
		return fmt.Sprintf("Hey %s! I'm %s, your delightfully sarcastic companion. Ready to roast life together? 😄", fullName, botName)
	case ToneProfessionalDirect:
		return fmt.Sprintf("Hello %s. I'm %s, your efficient AI assistant. Let's accomplish great things together. 💼", fullName, botName)
	case ToneSupportiveEncouraging:
		return fmt.Sprintf("Hi %s! I'm %s and I believe in you completely! You've got this! 💪", fullName, botName)
	case TonePlayfulBubbly:
		return fmt.Sprintf("Hey %s! I'm %s and I'm SO excited to be your friend! This is going to be amazing! 🎉", fullName, botName)
	}

	role := "AI companion"
	if persona.Role != "" {
		role = strings.ToLower(string(persona.Role))
	}
	return fmt.Sprintf("Hi %s! I'm %s, your %s. Ready to chat?", fullName, botName, role)
}
