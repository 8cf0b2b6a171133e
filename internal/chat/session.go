package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/profile"
	"vibemate.dev/vibemate/internal/stream"
)

// ErrBusy is returned by Send while a reply is still streaming.
var ErrBusy = errors.New("a reply is still streaming")

// StreamError reports a reply that could not be delivered. The log already
// holds the error message when it is returned.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("reply stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Request is one outgoing message as the transport sees it.
type Request struct {
	Endpoint   Endpoint
	UserID     string
	Message    string
	Attachment *Attachment
}

// Transport opens the streamed reply body for a request.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Snapshot is the observable state handed to the observer after every change.
type Snapshot struct {
	Messages []Message
	Typing   bool
}

type Option func(*Session)

// WithObserver registers fn to be called, outside the session lock, after
// every change to the log or the typing flag.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observer = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Session struct {
	transport Transport
	inflight  *semaphore.Weighted
	observer  func(Snapshot)
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	userID   string
	messages []Message
	typing   bool
}

func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		inflight:  semaphore.NewWeighted(1),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("chat")
	return s
}

// Initialize binds the session to the user and greets them if the log is empty.
func (s *Session) Initialize(p profile.UserProfile, persona profile.PersonaConfig) {
	s.mu.Lock()
	s.userID = p.UserID
	if len(s.messages) > 0 {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Sender:    SenderAI,
		Text:      WelcomeText(p, persona),
		Timestamp: s.now(),
		Kind:      KindText,
	})
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Clear empties the log. It is refused while a reply is streaming.
func (s *Session) Clear() error {
	if !s.inflight.TryAcquire(1) {
		return ErrBusy
	}
	defer s.inflight.Release(1)

	s.mu.Lock()
	s.messages = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// Send appends the user's message and streams the reply into the log. Blank
// text without an attachment is ignored. While another reply is streaming it
// returns ErrBusy and changes nothing. A failed reply is replaced by ErrorText
// and reported as a *StreamError. Cancelling ctx aborts the reply the same way.
func (s *Session) Send(ctx context.Context, text string, attachment *Attachment) error {
	return s.send(ctx, text, attachment != nil, func() *Attachment { return attachment })
}

// SendFromSlot sends text with the slot's pending attachment. The attachment
// leaves the slot only once the send is accepted, so ErrBusy keeps it there.
func (s *Session) SendFromSlot(ctx context.Context, text string, slot *AttachmentSlot) error {
	return s.send(ctx, text, slot.Current() != nil, slot.Take)
}

func (s *Session) send(ctx context.Context, text string, hasAttachment bool, take func() *Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" && !hasAttachment {
		return nil
	}
	if !s.inflight.TryAcquire(1) {
		return ErrBusy
	}
	defer s.inflight.Release(1)

	attachment := take()
	if text == "" && attachment == nil {
		return nil
	}

	userMsg := Message{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Text:      text,
		Timestamp: s.now(),
		Kind:      attachment.Kind(),
	}
	if attachment != nil {
		userMsg.FileName = attachment.Name
	}

	s.mu.Lock()
	s.messages = append(s.messages, userMsg)
	s.typing = true
	req := Request{
		Endpoint:   SelectEndpoint(attachment),
		UserID:     s.userID,
		Message:    text,
		Attachment: attachment,
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	s.logger.Debug("sending message", zap.String("endpoint", string(req.Endpoint)))
	body, err := s.transport.Open(ctx, req)
	if err != nil {
		return s.fail(err)
	}
	defer body.Close()

	reply, err := stream.Assemble(ctx, body, s.updateStreaming)
	if err != nil {
		return s.fail(err)
	}
	s.finish(reply)
	return nil
}

func (s *Session) updateStreaming(text string) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Streaming() {
		s.messages[n-1].Text = text
	} else {
		s.messages = append(s.messages, Message{
			ID:        StreamingID,
			Sender:    SenderAI,
			Text:      text,
			Timestamp: s.now(),
			Kind:      KindText,
		})
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) finish(reply string) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Streaming() {
		s.messages[n-1].ID = uuid.NewString()
		s.messages[n-1].Text = reply
	} else if reply != "" {
		s.messages = append(s.messages, Message{
			ID:        uuid.NewString(),
			Sender:    SenderAI,
			Text:      reply,
			Timestamp: s.now(),
			Kind:      KindText,
		})
	}
	s.typing = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) fail(cause error) error {
	s.logger.Warn("reply stream failed", zap.Error(cause))

	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Streaming() {
		s.messages = s.messages[:n-1]
	}
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Sender:    SenderAI,
		Text:      ErrorText,
		Timestamp: s.now(),
		Kind:      KindText,
	})
	s.typing = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return &StreamError{Err: cause}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: append([]Message(nil), s.messages...),
		Typing:   s.typing,
	}
}

func (s *Session) notify(snap Snapshot) {
	if s.observer != nil {
		s.observer(snap)
	}
}
