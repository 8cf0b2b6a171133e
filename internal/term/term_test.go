package term

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibemate.dev/vibemate/internal/chat"
)

func plainRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(80, "notty")
	require.NoError(t, err)
	return r
}

func TestRendererRendersMarkdown(t *testing.T) {
	out := plainRenderer(t).Render("# Hello\n\nSome **bold** words.")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "bold")
}

func TestNilRendererPassesThrough(t *testing.T) {
	var r *Renderer
	assert.Equal(t, "*raw*", r.Render("*raw*"))
}

func TestToaster(t *testing.T) {
	var buf bytes.Buffer
	NewToaster(&buf, DefaultStyles()).Notify("Voice Input", "Voice input feature coming soon!")
	assert.Contains(t, buf.String(), "Voice Input")
	assert.Contains(t, buf.String(), "Voice input feature coming soon!")
}

func msg(id string, sender chat.Sender, text string) chat.Message {
	return chat.Message{ID: id, Sender: sender, Text: text, Timestamp: time.Now(), Kind: chat.KindText}
}

func TestTranscriptLiveStreaming(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf, plainRenderer(t), DefaultStyles(), "Nova", true)

	welcome := msg("w", chat.SenderAI, "Hey Ana!")
	user := msg("u", chat.SenderUser, "hi")
	tr.Observe(chat.Snapshot{Messages: []chat.Message{welcome}})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{welcome, user}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{welcome, user, msg(chat.StreamingID, chat.SenderAI, "He")}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{welcome, user, msg(chat.StreamingID, chat.SenderAI, "Hello ")}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{welcome, user, msg("r", chat.SenderAI, "Hello ")}})

	out := buf.String()
	assert.Contains(t, out, "Hey Ana!")
	assert.Contains(t, out, "Hello ")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Hello")), "finished reply is not printed twice")
	assert.NotContains(t, out, "typing")
}

func TestTranscriptRenderedMode(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf, plainRenderer(t), DefaultStyles(), "Nova", false)

	user := msg("u", chat.SenderUser, "hi")
	tr.Observe(chat.Snapshot{Messages: []chat.Message{user}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{user, msg(chat.StreamingID, chat.SenderAI, "Hel")}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{user, msg("r", chat.SenderAI, "Hello there")}})

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Nova is typing")))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Hel")), "partial reply is not shown")
	assert.Contains(t, buf.String(), "Hello there")
}

func TestTranscriptShowsFailure(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf, plainRenderer(t), DefaultStyles(), "Nova", true)

	user := msg("u", chat.SenderUser, "hi")
	tr.Observe(chat.Snapshot{Messages: []chat.Message{user, msg(chat.StreamingID, chat.SenderAI, "par")}, Typing: true})
	tr.Observe(chat.Snapshot{Messages: []chat.Message{user, msg("e", chat.SenderAI, chat.ErrorText)}})

	assert.Contains(t, buf.String(), chat.ErrorText)
}

func TestSummary(t *testing.T) {
	out := Summary([][2]string{{"Name", "Ana"}, {"Companion", "Nova"}})
	assert.Equal(t, "- **Name:** Ana\n- **Companion:** Nova\n", out)
}
