package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibemate.dev/vibemate/internal/store"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []Prompt
	chunks  []string
	err     error
}

func (f *fakeGenerator) StreamReply(ctx context.Context, p Prompt, emit func(string) error) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	chunks, failure := f.chunks, f.err
	f.mu.Unlock()

	for _, c := range chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return failure
}

func (f *fakeGenerator) last() Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

func newTestService(t *testing.T, gen Generator, window int) (*ChatService, string) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "vibemate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewChatService(db, gen, window, nil)
	age := 29
	user, created, err := svc.SaveUser(context.Background(), store.User{FullName: "Ana", Age: &age, Gender: "Female"})
	require.NoError(t, err)
	require.True(t, created)
	_, err = svc.SaveBot(context.Background(), store.Bot{
		UserID: user.ID, BotName: "Nova", Personality: "playful", Role: "Best Friend", Tone: "Calm",
	})
	require.NoError(t, err)
	return svc, user.ID
}

func collect(sb *strings.Builder) func(string) error {
	return func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	}
}

func TestSystemPrompt(t *testing.T) {
	age := 29
	got := SystemPrompt(
		&store.User{FullName: "Ana", Age: &age, Gender: "Female"},
		&store.Bot{BotName: "Nova", Role: "Best Friend", Tone: "Calm", Personality: "playful"},
	)
	assert.Contains(t, got, "You are Nova, my Best Friend. Your tone is calm and your personality is playful.")
	assert.Contains(t, got, "You're chatting with Ana, a 29-year-old Female.")

	fallback := SystemPrompt(&store.User{FullName: "Bo"}, nil)
	assert.Contains(t, fallback, "my companion")
	assert.Contains(t, fallback, "a unknown age-year-old user")
}

func TestChatStreamsAndRemembers(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Hey ", "Ana!"}}
	svc, userID := newTestService(t, gen, 0)
	ctx := context.Background()

	var out strings.Builder
	require.NoError(t, svc.Chat(ctx, userID, "  hello  ", collect(&out)))
	assert.Equal(t, "Hey Ana!", out.String())

	first := gen.last()
	assert.Equal(t, "hello", first.Message)
	assert.Contains(t, first.System, "You are Nova")
	assert.Empty(t, first.History)

	out.Reset()
	require.NoError(t, svc.Chat(ctx, userID, "again", collect(&out)))
	second := gen.last()
	require.Len(t, second.History, 2)
	assert.Equal(t, store.RoleUser, second.History[0].Role)
	assert.Equal(t, "hello", second.History[0].Content)
	assert.Equal(t, "Hey Ana!", second.History[1].Content)

	memory, err := svc.Memory(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, memory, 4)

	require.NoError(t, svc.ClearMemory(ctx, userID))
	memory, err = svc.Memory(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, memory)
}

func TestChatKeepsMemoryWindow(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	svc, userID := newTestService(t, gen, 2)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, svc.Chat(ctx, userID, msg, func(string) error { return nil }))
	}
	memory, err := svc.Memory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memory, 2)
	assert.Equal(t, "three", memory[0].Content)
}

func TestChatFailureIsNotRemembered(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &fakeGenerator{chunks: []string{"partial"}, err: boom}
	svc, userID := newTestService(t, gen, 0)
	ctx := context.Background()

	err := svc.Chat(ctx, userID, "hello", func(string) error { return nil })
	require.ErrorIs(t, err, boom)

	memory, err := svc.Memory(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, memory)
}

func TestChatValidation(t *testing.T) {
	svc, userID := newTestService(t, &fakeGenerator{}, 0)
	ctx := context.Background()
	noop := func(string) error { return nil }

	assert.ErrorIs(t, svc.Chat(ctx, userID, "   ", noop), ErrEmptyMessage)
	assert.ErrorIs(t, svc.Chat(ctx, "", "hi", noop), ErrMissingUserID)
	assert.ErrorIs(t, svc.Chat(ctx, "ghost", "hi", noop), ErrUserNotFound)

	_, err := svc.SaveBot(ctx, store.Bot{UserID: "ghost", BotName: "Nova"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.SaveBot(ctx, store.Bot{BotName: "Nova"})
	assert.ErrorIs(t, err, ErrMissingUserID)
	_, err = svc.GetBot(ctx, "ghost")
	assert.ErrorIs(t, err, ErrBotNotFound)
}

func TestChatWithImage(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"A cat."}}
	svc, userID := newTestService(t, gen, 0)
	ctx := context.Background()

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	var out strings.Builder
	require.NoError(t, svc.ChatWithImage(ctx, userID, "", "cat.png", png, collect(&out)))
	assert.Equal(t, "A cat.", out.String())

	p := gen.last()
	require.NotNil(t, p.Image)
	assert.Equal(t, "image/png", p.Image.MIMEType)
	assert.Equal(t, defaultImagePrompt, p.Message)

	memory, err := svc.Memory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memory, 2)
	assert.Equal(t, "[attached cat.png]", memory[0].Content)

	err = svc.ChatWithImage(ctx, userID, "what is this", "doc.txt", []byte("just text"), collect(&out))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestChatWithDocument(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Looks good."}}
	svc, userID := newTestService(t, gen, 0)
	ctx := context.Background()

	doc := Document{Name: "notes.txt", ContentType: "text/plain", Data: []byte("buy milk\ncall mom")}
	require.NoError(t, svc.ChatWithDocument(ctx, userID, "summarize", doc, func(string) error { return nil }))

	p := gen.last()
	assert.Contains(t, p.Message, "summarize")
	assert.Contains(t, p.Message, "Contents of notes.txt:\nbuy milk\ncall mom")
	assert.Nil(t, p.Image)

	memory, err := svc.Memory(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, memory)
	assert.Equal(t, "summarize\n[attached notes.txt]", memory[0].Content)

	pdf := Document{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3")}
	err = svc.ChatWithDocument(ctx, userID, "summarize", pdf, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText(Document{Name: "cafe.txt", Data: []byte("caf\xe9")})
	require.NoError(t, err)
	assert.Equal(t, "café", text)

	utf16 := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	text, err = ExtractText(Document{Name: "hi.txt", Data: utf16})
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	text, err = ExtractText(Document{Name: "bom.md", Data: []byte("\xef\xbb\xbf# Title")})
	require.NoError(t, err)
	assert.Equal(t, "# Title", text)

	long := strings.Repeat("a", maxDocumentRunes+10)
	text, err = ExtractText(Document{Name: "long.txt", Data: []byte(long)})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "\n[truncated]"))
}
