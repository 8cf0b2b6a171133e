package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"vibemate.dev/vibemate/internal/store"
)

const systemPromptTemplate = "You are %s, my %s. Your tone is %s and your personality is %s.\n" +
	"You're chatting with %s, a %s-year-old %s.\n" +
	"Be helpful, warm, and responsive in our conversations.\n" +
	"Speak in a witty, humorous way without being offensive. Keep things casual but smart."

// Image is an inline picture sent along with the user's message.
type Image struct {
	MIMEType string
	Data     []byte
}

// Prompt is everything the model sees for one reply.
type Prompt struct {
	System  string
	History []store.MemoryMessage
	Message string
	Image   *Image
}

// SystemPrompt describes the companion and the person it talks to. Missing
// values fall back to neutral wording.
func SystemPrompt(user *store.User, bot *store.Bot) string {
	name, role, tone, personality := "VibeMate", "companion", "friendly", "kind and curious"
	if bot != nil {
		name = orDefault(bot.BotName, name)
		role = orDefault(bot.Role, role)
		tone = orDefault(bot.Tone, tone)
		personality = orDefault(bot.Personality, personality)
	}

	userName, age, gender := "a friend", "unknown age", "user"
	if user != nil {
		userName = orDefault(user.FullName, userName)
		if user.Age != nil {
			age = strconv.Itoa(*user.Age)
		}
		gender = orDefault(user.Gender, gender)
	}
	return fmt.Sprintf(systemPromptTemplate, name, role, strings.ToLower(tone), personality, userName, age, gender)
}

// history converts stored memory into chat history for the model.
func history(turns []store.MemoryMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := store.RoleUser
		if turn.Role == store.RoleModel {
			role = store.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
