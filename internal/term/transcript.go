package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"vibemate.dev/vibemate/internal/chat"
)

// Transcript prints a chat session as it changes. It is meant to be passed to
// chat.WithObserver.
//
// In live mode the in-flight reply is written as it streams. Otherwise a typing
// line is shown and the finished reply is rendered as markdown in one piece.
type Transcript struct {
	out      io.Writer
	renderer *Renderer
	styles   Styles
	botName  string
	live     bool

	mu       sync.Mutex
	shown    map[string]bool
	streamed int
	typing   bool
}

func NewTranscript(out io.Writer, renderer *Renderer, styles Styles, botName string, live bool) *Transcript {
	return &Transcript{
		out:      out,
		renderer: renderer,
		styles:   styles,
		botName:  botName,
		live:     live,
		shown:    make(map[string]bool),
	}
}

func (t *Transcript) Observe(snap chat.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range snap.Messages {
		if m.Streaming() {
			t.writeStreaming(m.Text)
			continue
		}
		if t.shown[m.ID] {
			continue
		}
		t.shown[m.ID] = true
		t.writeFinished(m)
	}

	switch {
	case snap.Typing && !t.live && !t.typing:
		fmt.Fprintln(t.out, t.styles.Muted.Render(t.botName+" is typing…"))
		t.typing = true
	case !snap.Typing:
		t.typing = false
	}
}

func (t *Transcript) writeStreaming(text string) {
	if !t.live || len(text) <= t.streamed {
		return
	}
	if t.streamed == 0 {
		fmt.Fprint(t.out, t.styles.Speaker.Render(t.botName+":")+" ")
	}
	fmt.Fprint(t.out, text[t.streamed:])
	t.streamed = len(text)
}

func (t *Transcript) writeFinished(m chat.Message) {
	if m.Sender == chat.SenderUser {
		if m.FileName != "" {
			fmt.Fprintln(t.out, t.styles.Muted.Render("📎 sent "+m.FileName))
		}
		return
	}

	wasStreaming := t.streamed > 0
	t.streamed = 0
	if wasStreaming {
		fmt.Fprintln(t.out)
	}

	switch {
	case m.Text == chat.ErrorText:
		fmt.Fprintln(t.out, t.styles.Error.Render(m.Text))
	case wasStreaming:
		// already on screen
	default:
		fmt.Fprintln(t.out, t.styles.Speaker.Render(t.botName+":"))
		fmt.Fprintln(t.out, t.renderer.Render(m.Text))
	}
	fmt.Fprintln(t.out)
}

// Summary renders the stored setup as a short markdown document.
func Summary(lines [][2]string) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "- **%s:** %s\n", l[0], l[1])
	}
	return b.String()
}
