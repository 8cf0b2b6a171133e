package chat

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/logging"
)

// Attachment is a file the user sends along with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadAttachment reads path and guesses its content type, first from the
// extension and then from the leading bytes.
func LoadAttachment(path string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

func (a *Attachment) Kind() Kind {
	switch {
	case a == nil:
		return KindText
	case a.IsImage():
		return KindImage
	default:
		return KindFile
	}
}

// Endpoint is the backend path a message is posted to.
type Endpoint string

const (
	EndpointChat   Endpoint = "/api/chat"
	EndpointVision Endpoint = "/api/chat/vision"
	EndpointUpload Endpoint = "/api/chat/upload"
)

// SelectEndpoint picks the endpoint by attachment class: none goes to chat,
// images to vision and anything else to upload.
func SelectEndpoint(a *Attachment) Endpoint {
	switch a.Kind() {
	case KindImage:
		return EndpointVision
	case KindFile:
		return EndpointUpload
	default:
		return EndpointChat
	}
}

// AttachmentSlot holds the attachment picked for the next message. An image
// gets a preview file on disk for as long as it stays selected; the preview is
// removed when the attachment is replaced, cleared, taken or the slot is closed.
type AttachmentSlot struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	current *Attachment
	preview string
	closed  bool
}

// NewAttachmentSlot keeps previews under dir; an empty dir means os.TempDir.
func NewAttachmentSlot(dir string, logger *zap.Logger) *AttachmentSlot {
	return &AttachmentSlot{dir: dir, logger: logging.OrNop(logger).Named("attachments")}
}

// Select replaces the current attachment and returns the preview path, which is
// empty for non-image files.
func (s *AttachmentSlot) Select(a *Attachment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("attachment slot is closed")
	}

	s.releaseLocked()
	s.current = a
	if !a.IsImage() {
		return "", nil
	}

	f, err := os.CreateTemp(s.dir, "vibemate-preview-*"+filepath.Ext(a.Name))
	if err != nil {
		return "", fmt.Errorf("failed to create preview: %w", err)
	}
	if _, err := f.Write(a.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	s.preview = f.Name()
	return s.preview, nil
}

func (s *AttachmentSlot) Current() *Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *AttachmentSlot) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Take empties the slot and hands the attachment to the caller for sending.
func (s *AttachmentSlot) Take() *Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	s.releaseLocked()
	return a
}

func (s *AttachmentSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *AttachmentSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
	return nil
}

func (s *AttachmentSlot) releaseLocked() {
	if s.preview != "" {
		if err := os.Remove(s.preview); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove preview", zap.String("path", s.preview), zap.Error(err))
		}
	}
	s.preview = ""
	s.current = nil
}
