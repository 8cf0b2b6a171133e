package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/store"
)

const (
	defaultMemoryWindow = 20
	defaultImagePrompt  = "What do you see in this image?"
)

var (
	ErrMissingUserID = errors.New("user id is missing")
	ErrUserNotFound  = errors.New("user not found")
	ErrBotNotFound   = errors.New("companion not found")
	ErrEmptyMessage  = errors.New("message is empty")
)

// Store is the persistence the chat service needs.
type Store interface {
	SaveUser(ctx context.Context, user *store.User) (bool, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	SaveBot(ctx context.Context, bot *store.Bot) error
	GetBot(ctx context.Context, userID string) (*store.Bot, error)
	AppendMemory(ctx context.Context, userID string, window int, turns ...store.MemoryMessage) error
	RecentMemory(ctx context.Context, userID string, n int) ([]store.MemoryMessage, error)
	ClearMemory(ctx context.Context, userID string) (int64, error)
}

var _ Store = (*store.SQLiteStore)(nil)

type ChatService struct {
	dbStore Store
	llm     Generator
	window  int
	logger  *zap.Logger
}

// NewChatService keeps the last window turns per user as conversation memory.
func NewChatService(db Store, llm Generator, window int, logger *zap.Logger) *ChatService {
	if window <= 0 {
		window = defaultMemoryWindow
	}
	return &ChatService{
		dbStore: db,
		llm:     llm,
		window:  window,
		logger:  logging.OrNop(logger).Named("chat"),
	}
}

// SaveUser creates the user when ID is empty or unknown, and updates it
// otherwise. It reports whether the user was created.
func (s *ChatService) SaveUser(ctx context.Context, user store.User) (store.User, bool, error) {
	user.ID = strings.TrimSpace(user.ID)
	created, err := s.dbStore.SaveUser(ctx, &user)
	if err != nil {
		return store.User{}, false, err
	}
	s.logger.Info("user saved", zap.String("userId", user.ID), zap.Bool("created", created))
	return user, created, nil
}

func (s *ChatService) GetUser(ctx context.Context, userID string) (*store.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	user, err := s.dbStore.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SaveBot stores the companion of an existing user.
func (s *ChatService) SaveBot(ctx context.Context, bot store.Bot) (store.Bot, error) {
	if _, err := s.GetUser(ctx, bot.UserID); err != nil {
		return store.Bot{}, err
	}
	if err := s.dbStore.SaveBot(ctx, &bot); err != nil {
		return store.Bot{}, err
	}
	s.logger.Info("companion saved", zap.String("userId", bot.UserID), zap.String("role", bot.Role))
	return bot, nil
}

func (s *ChatService) GetBot(ctx context.Context, userID string) (*store.Bot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	bot, err := s.dbStore.GetBot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, ErrBotNotFound
	}
	return bot, nil
}

// Chat streams the companion's answer to message through emit.
func (s *ChatService) Chat(ctx context.Context, userID, message string, emit func(string) error) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	return s.reply(ctx, userID, Prompt{Message: message}, message, emit)
}

// ChatWithDocument answers a message about an uploaded text document.
func (s *ChatService) ChatWithDocument(ctx context.Context, userID, message string, doc Document, emit func(string) error) error {
	text, err := ExtractText(doc)
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	prompt := fmt.Sprintf("%s\n\nContents of %s:\n%s", message, doc.Name, text)
	return s.reply(ctx, userID, Prompt{Message: strings.TrimSpace(prompt)}, remembered(message, doc.Name), emit)
}

// ChatWithImage answers a message about a JPEG, PNG or GIF picture.
func (s *ChatService) ChatWithImage(ctx context.Context, userID, message, name string, data []byte, emit func(string) error) error {
	mimeType, err := ImageType(data)
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	text := message
	if text == "" {
		text = defaultImagePrompt
	}
	p := Prompt{Message: text, Image: &Image{MIMEType: mimeType, Data: data}}
	return s.reply(ctx, userID, p, remembered(message, name), emit)
}

func (s *ChatService) Memory(ctx context.Context, userID string) ([]store.MemoryMessage, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.dbStore.RecentMemory(ctx, userID, s.window)
}

func (s *ChatService) ClearMemory(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	removed, err := s.dbStore.ClearMemory(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Info("memory cleared", zap.String("userId", userID), zap.Int64("turns", removed))
	return nil
}

// reply streams one answer and then remembers the exchange. Nothing is
// remembered when the stream fails or the answer is empty.
func (s *ChatService) reply(ctx context.Context, userID string, p Prompt, memoryText string, emit func(string) error) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	bot, err := s.dbStore.GetBot(ctx, userID)
	if err != nil {
		return err
	}
	p.System = SystemPrompt(user, bot)

	p.History, err = s.dbStore.RecentMemory(ctx, userID, s.window)
	if err != nil {
		return err
	}

	var answer strings.Builder
	err = s.llm.StreamReply(ctx, p, func(chunk string) error {
		answer.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		return fmt.Errorf("failed to generate reply: %w", err)
	}

	// history alternates user and model turns
	if answer.Len() == 0 {
		return nil
	}
	turns := []store.MemoryMessage{
		{Role: store.RoleUser, Content: memoryText},
		{Role: store.RoleModel, Content: answer.String()},
	}
	// the reply has been delivered even if the client is gone by now
	if err := s.dbStore.AppendMemory(context.WithoutCancel(ctx), userID, s.window, turns...); err != nil {
		s.logger.Warn("failed to remember exchange", zap.String("userId", userID), zap.Error(err))
	}
	return nil
}

func remembered(message, attachment string) string {
	note := fmt.Sprintf("[attached %s]", attachment)
	if message == "" {
		return note
	}
	return message + "\n" + note
}
