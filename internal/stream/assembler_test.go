package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chunkReader hands out one chunk per Read call, then EOF or err.
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
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func chunksOf(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

func TestAssembleReportsAccumulatedText(t *testing.T) {
	var updates []string
	text, err := Assemble(context.Background(), chunksOf("He", "llo "), func(s string) {
		updates = append(updates, s)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello ", text)
	assert.Equal(t, []string{"He", "Hello "}, updates)
}

func TestAssembleEverySplitMatchesWholeDecode(t *testing.T) {
	input := []byte("Hi 👋 ¿qué tal? 日本語 — ok 🌸")
	want := string(input)

	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			r := &chunkReader{chunks: [][]byte{
				append([]byte(nil), input[:i]...),
				append([]byte(nil), input[i:j]...),
				append([]byte(nil), input[j:]...),
			}}
			var last string
			got, err := Assemble(context.Background(), r, func(s string) { last = s })
			require.NoError(t, err)
			require.Equal(t, want, got, "split at %d/%d", i, j)
			require.Equal(t, want, last)
			require.NotContains(t, got, "�")
		}
	}
}

func TestAssembleByteAtATime(t *testing.T) {
	input := "naïve café 🎉"
	r := &chunkReader{}
	for i := 0; i < len(input); i++ {
		r.chunks = append(r.chunks, []byte{input[i]})
	}

	var updates []string
	got, err := Assemble(context.Background(), r, func(s string) { updates = append(updates, s) })
	require.NoError(t, err)
	assert.Equal(t, input, got)
	// one update per completed rune, none for a partial sequence
	assert.Len(t, updates, len([]rune(input)))
	for _, u := range updates {
		assert.NotContains(t, u, "�")
	}
}

func TestAssembleFailureDeliversNoResult(t *testing.T) {
	boom := errors.New("connection reset")
	r := chunksOf("partial ")
	r.err = boom

	var updates []string
	got, err := Assemble(context.Background(), r, func(s string) { updates = append(updates, s) })

	require.ErrorIs(t, err, boom)
	assert.Empty(t, got)
	assert.Equal(t, []string{"partial "}, updates)
}

func TestAssembleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := chunksOf("one ", "two ")

	got, err := Assemble(ctx, r, func(string) { cancel() })

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestFlushReplacesTruncatedSequence(t *testing.T) {
	asm := NewAssembler()
	grew, err := asm.Feed([]byte{'o', 'k', 0xE6, 0x97})
	require.NoError(t, err)
	assert.True(t, grew)
	assert.Equal(t, "ok", asm.Text())

	grew, err = asm.Flush()
	require.NoError(t, err)
	assert.True(t, grew)
	assert.True(t, strings.HasPrefix(asm.Text(), "ok"))
	assert.Contains(t, asm.Text(), "�")
}

func TestFeedLargeChunk(t *testing.T) {
	input := strings.Repeat("日本", 3000)
	asm := NewAssembler()
	_, err := asm.Feed([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, input, asm.Text())
}
