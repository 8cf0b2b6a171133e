package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vibemate.dev/vibemate/internal/profile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

type fakeTransport struct {
	mu       sync.Mutex
	requests []Request
	open     func(ctx context.Context) (io.ReadCloser, error)
}

func (f *fakeTransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.open(ctx)
}

func replying(chunks ...string) *fakeTransport {
	return &fakeTransport{open: func(context.Context) (io.ReadCloser, error) {
		r := &chunkReader{}
		for _, c := range chunks {
			r.chunks = append(r.chunks, []byte(c))
		}
		return r, nil
	}}
}

func intPtr(v int) *int { return &v }

func ana() profile.UserProfile {
	return profile.UserProfile{UserID: "user-1", FullName: "Ana", Age: intPtr(29), Gender: "Female"}
}

func nova() profile.PersonaConfig {
	return profile.PersonaConfig{UserID: "user-1", BotName: "Nova", Personality: "warm", Role: profile.RoleBestFriend, Tone: profile.ToneCalm}
}

func TestInitializeGreetsOnce(t *testing.T) {
	s := NewSession(replying())
	s.Initialize(ana(), nova())
	s.Initialize(ana(), nova())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderAI, msgs[0].Sender)
	assert.Contains(t, msgs[0].Text, "Ana")
	assert.Contains(t, msgs[0].Text, "Nova")
	assert.Contains(t, msgs[0].Text, "Best Friend")
}

func TestSendStreamsIntoSentinel(t *testing.T) {
	var snaps []Snapshot
	transport := replying("He", "llo ")
	s := NewSession(transport, WithObserver(func(snap Snapshot) { snaps = append(snaps, snap) }))
	s.Initialize(ana(), nova())
	snaps = nil

	require.NoError(t, s.Send(context.Background(), "hi", nil))

	var streamed []string
	for _, snap := range snaps {
		last := snap.Messages[len(snap.Messages)-1]
		if last.Streaming() {
			assert.True(t, snap.Typing)
			streamed = append(streamed, last.Text)
		}
	}
	assert.Equal(t, []string{"He", "Hello "}, streamed)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, SenderUser, msgs[1].Sender)
	assert.Equal(t, "hi", msgs[1].Text)
	assert.Equal(t, "Hello ", msgs[2].Text)
	assert.NotEqual(t, StreamingID, msgs[2].ID)
	assert.False(t, s.Typing())

	require.Len(t, transport.requests, 1)
	assert.Equal(t, Request{Endpoint: EndpointChat, UserID: "user-1", Message: "hi"}, transport.requests[0])
}

func TestSendIgnoresBlankInput(t *testing.T) {
	transport := replying("x")
	s := NewSession(transport)
	require.NoError(t, s.Send(context.Background(), "   ", nil))
	assert.Empty(t, s.Messages())
	assert.Empty(t, transport.requests)
}

func TestSendFailureReplacesPartialReply(t *testing.T) {
	transport := &fakeTransport{open: func(context.Context) (io.ReadCloser, error) {
		return &chunkReader{chunks: [][]byte{[]byte("partial")}, err: errors.New("connection reset")}, nil
	}}
	s := NewSession(transport)
	s.Initialize(ana(), nova())

	err := s.Send(context.Background(), "hi", nil)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, ErrorText, msgs[2].Text)
	for _, m := range msgs {
		assert.False(t, m.Streaming())
		assert.NotContains(t, m.Text, "partial")
	}
	assert.False(t, s.Typing())
}

func TestSendTransportErrorIsStreamError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	transport := &fakeTransport{open: func(context.Context) (io.ReadCloser, error) { return nil, cause }}
	s := NewSession(transport)

	err := s.Send(context.Background(), "hi", nil)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorText, s.Messages()[1].Text)
}

type blockingReader struct {
	ctx     context.Context
	release chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	select {
	case <-r.release:
		return 0, io.EOF
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

func (r *blockingReader) Close() error { return nil }

func TestSendWhileTypingIsRejected(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeTransport{open: func(ctx context.Context) (io.ReadCloser, error) {
		return &blockingReader{ctx: ctx, release: release}, nil
	}}
	s := NewSession(transport)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first", nil) }()
	require.Eventually(t, s.Typing, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.Send(context.Background(), "second", nil), ErrBusy)
	assert.ErrorIs(t, s.Clear(), ErrBusy)

	close(release)
	require.NoError(t, <-done)

	msgs := s.Messages()
	require.Len(t, msgs, 1, "empty reply adds no assistant message")
	assert.Equal(t, "first", msgs[0].Text)
	transport.mu.Lock()
	assert.Len(t, transport.requests, 1)
	transport.mu.Unlock()
}

func TestBusySendKeepsPendingAttachment(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeTransport{open: func(ctx context.Context) (io.ReadCloser, error) {
		return &blockingReader{ctx: ctx, release: release}, nil
	}}
	s := NewSession(transport)
	slot := NewAttachmentSlot(t.TempDir(), nil)
	defer slot.Close()

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first", nil) }()
	require.Eventually(t, s.Typing, time.Second, time.Millisecond)

	_, err := slot.Select(&Attachment{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hi")})
	require.NoError(t, err)
	assert.ErrorIs(t, s.SendFromSlot(context.Background(), "read this", slot), ErrBusy)
	require.NotNil(t, slot.Current(), "rejected send leaves the attachment in place")

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, s.SendFromSlot(context.Background(), "read this", slot))
	assert.Nil(t, slot.Current())

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.requests, 2)
	require.NotNil(t, transport.requests[1].Attachment)
	assert.Equal(t, "notes.txt", transport.requests[1].Attachment.Name)
	assert.Equal(t, EndpointUpload, transport.requests[1].Endpoint)
}

func TestCancelAbortsReply(t *testing.T) {
	transport := &fakeTransport{open: func(ctx context.Context) (io.ReadCloser, error) {
		return &blockingReader{ctx: ctx, release: make(chan struct{})}, nil
	}}
	s := NewSession(transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, "hello?", nil) }()
	require.Eventually(t, s.Typing, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Typing())
	assert.Equal(t, ErrorText, s.Messages()[1].Text)
}

func TestSendWithAttachmentSelectsEndpoint(t *testing.T) {
	transport := replying("nice picture")
	s := NewSession(transport)
	s.Initialize(ana(), nova())

	img := &Attachment{Name: "cat.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	require.NoError(t, s.Send(context.Background(), "", img))
	doc := &Attachment{Name: "notes.txt", ContentType: "text/plain", Data: []byte("notes")}
	require.NoError(t, s.Send(context.Background(), "summarize", doc))

	require.Len(t, transport.requests, 2)
	assert.Equal(t, EndpointVision, transport.requests[0].Endpoint)
	assert.Equal(t, EndpointUpload, transport.requests[1].Endpoint)

	msgs := s.Messages()
	assert.Equal(t, KindImage, msgs[1].Kind)
	assert.Equal(t, "cat.png", msgs[1].FileName)
	assert.Equal(t, KindFile, msgs[3].Kind)
}

func TestSelectEndpoint(t *testing.T) {
	assert.Equal(t, EndpointChat, SelectEndpoint(nil))
	assert.Equal(t, EndpointVision, SelectEndpoint(&Attachment{ContentType: "image/jpeg"}))
	assert.Equal(t, EndpointVision, SelectEndpoint(&Attachment{ContentType: "IMAGE/GIF"}))
	assert.Equal(t, EndpointUpload, SelectEndpoint(&Attachment{ContentType: "application/pdf"}))
	assert.Equal(t, EndpointUpload, SelectEndpoint(&Attachment{}))
}

func TestAttachmentSlotReleasesPreviews(t *testing.T) {
	dir := t.TempDir()
	slot := NewAttachmentSlot(dir, nil)

	first, err := slot.Select(&Attachment{Name: "a.png", ContentType: "image/png", Data: []byte("a")})
	require.NoError(t, err)
	require.FileExists(t, first)

	second, err := slot.Select(&Attachment{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")})
	require.NoError(t, err)
	assert.NoFileExists(t, first, "superseded")
	assert.FileExists(t, second)

	taken := slot.Take()
	require.NotNil(t, taken)
	assert.Equal(t, "b.jpg", taken.Name)
	assert.NoFileExists(t, second, "taken")
	assert.Nil(t, slot.Current())

	third, err := slot.Select(&Attachment{Name: "c.gif", ContentType: "image/gif", Data: []byte("c")})
	require.NoError(t, err)
	slot.Clear()
	assert.NoFileExists(t, third, "cleared")

	fourth, err := slot.Select(&Attachment{Name: "d.png", ContentType: "image/png", Data: []byte("d")})
	require.NoError(t, err)
	require.NoError(t, slot.Close())
	assert.NoFileExists(t, fourth, "closed")

	_, err = slot.Select(&Attachment{Name: "e.png", ContentType: "image/png"})
	assert.Error(t, err)
}

func TestAttachmentSlotNoPreviewForDocuments(t *testing.T) {
	dir := t.TempDir()
	slot := NewAttachmentSlot(dir, nil)
	preview, err := slot.Select(&Attachment{Name: "notes.txt", ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Empty(t, preview)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600))

	a, err := LoadAttachment(path)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", a.Name)
	assert.Equal(t, "image/png", a.ContentType)
	assert.True(t, a.IsImage())

	_, err = LoadAttachment(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
