package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"vibemate.dev/vibemate/internal/logging"
)

const (
	defaultChatModelName   = "gemini-1.5-flash-latest"
	defaultVisionModelName = "gemini-1.5-flash-latest"
)

// Generator streams a model reply. emit is called once per text chunk in
// order; an error from emit stops the stream and is returned.
type Generator interface {
	StreamReply(ctx context.Context, p Prompt, emit func(chunk string) error) error
}

var _ Generator = (*LLMService)(nil)

type LLMService struct {
	client      *genai.Client
	chatModel   string
	visionModel string
	logger      *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, chatModel, visionModel string, logger *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	if visionModel == "" {
		visionModel = defaultVisionModelName
	}
	return &LLMService{
		client:      client,
		chatModel:   chatModel,
		visionModel: visionModel,
		logger:      logging.OrNop(logger).Named("llm"),
	}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing GenAI client", zap.Error(err))
		return
	}
	s.logger.Debug("GenAI client closed")
}

func (s *LLMService) StreamReply(ctx context.Context, p Prompt, emit func(chunk string) error) error {
	modelName := s.chatModel
	var parts []genai.Part
	if p.Image != nil {
		modelName = s.visionModel
		parts = append(parts, genai.ImageData(strings.TrimPrefix(p.Image.MIMEType, "image/"), p.Image.Data))
	}
	if p.Message != "" {
		parts = append(parts, genai.Text(p.Message))
	}
	if len(parts) == 0 {
		return errors.New("nothing to send to the model")
	}

	model := s.client.GenerativeModel(modelName)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}

	chatSession := model.StartChat()
	chatSession.History = history(p.History)

	iter := chatSession.SendMessageStream(ctx, parts...)
	chunks := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("gemini chat stream failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			txt, ok := part.(genai.Text)
			if !ok {
				s.logger.Debug("skipping non-text part", zap.String("type", fmt.Sprintf("%T", part)))
				continue
			}
			if txt == "" {
				continue
			}
			chunks++
			if err := emit(string(txt)); err != nil {
				return err
			}
		}
	}
	s.logger.Debug("reply streamed", zap.String("model", modelName), zap.Int("chunks", chunks))
	return nil
}
