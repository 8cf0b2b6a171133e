package term

import (
	"fmt"
	"io"
	"sync"
)

// Toaster prints (title, description) notifications as a boxed note.
type Toaster struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

func NewToaster(out io.Writer, styles Styles) *Toaster {
	return &Toaster{out: out, styles: styles}
}

func (t *Toaster) Notify(title, description string) {
	body := t.styles.ToastHead.Render(title)
	if description != "" {
		body += "\n" + description
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.styles.Toast.Render(body))
}
