// Package stream assembles a streamed response body into one growing text value.
//
// Bodies arrive as arbitrary byte chunks. A chunk may end in the middle of a
// multi-byte UTF-8 sequence, so the undecodable tail of each chunk is held back
// and decoded together with the next one.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const readBufferSize = 4096

// Assembler decodes chunks incrementally. The zero value is not usable; call NewAssembler.
type Assembler struct {
	decoder transform.Transformer
	pending []byte
	dst     []byte
	text    strings.Builder
}

func NewAssembler() *Assembler {
	return &Assembler{
		decoder: unicode.UTF8.NewDecoder(),
		dst:     make([]byte, readBufferSize),
	}
}

// Feed decodes chunk, prefixed by any tail held back from the previous call.
// It reports whether the accumulated text grew.
func (a *Assembler) Feed(chunk []byte) (bool, error) {
	if len(chunk) == 0 {
		return false, nil
	}
	src := make([]byte, 0, len(a.pending)+len(chunk))
	src = append(src, a.pending...)
	src = append(src, chunk...)
	a.pending = a.pending[:0]
	return a.decode(src, false)
}

// Flush decodes whatever is still held back. A sequence that never completed is
// genuinely malformed at this point and comes out as U+FFFD.
func (a *Assembler) Flush() (bool, error) {
	if len(a.pending) == 0 {
		return false, nil
	}
	src := a.pending
	a.pending = nil
	return a.decode(src, true)
}

// Text returns everything decoded so far.
func (a *Assembler) Text() string {
	return a.text.String()
}

func (a *Assembler) decode(src []byte, atEOF bool) (bool, error) {
	before := a.text.Len()
	for len(src) > 0 {
		nDst, nSrc, err := a.decoder.Transform(a.dst, src, atEOF)
		a.text.Write(a.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				a.dst = make([]byte, 2*len(a.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			a.pending = append(a.pending, src...)
			return a.text.Len() > before, nil
		default:
			return a.text.Len() > before, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
	}
	return a.text.Len() > before, nil
}

// Assemble reads r until EOF, calling onUpdate with the accumulated text every
// time it grows. It returns the final text on EOF. On a read error or context
// cancellation it returns an empty string and the error; nothing decoded before
// the failure is delivered as a result.
func Assemble(ctx context.Context, r io.Reader, onUpdate func(text string)) (string, error) {
	if onUpdate == nil {
		onUpdate = func(string) {}
	}
	asm := NewAssembler()
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("stream aborted: %w", err)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			grew, err := asm.Feed(buf[:n])
			if err != nil {
				return "", err
			}
			if grew {
				onUpdate(asm.Text())
			}
		}

		if readErr == nil {
			continue
		}
		if !errors.Is(readErr, io.EOF) {
			return "", fmt.Errorf("failed to read response stream: %w", readErr)
		}

		grew, err := asm.Flush()
		if err != nil {
			return "", err
		}
		if grew {
			onUpdate(asm.Text())
		}
		return asm.Text(), nil
	}
}
