package mcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxFrameSize caps a single message body. Larger frames are discarded.
const MaxFrameSize = 16 << 20

const contentLengthHeader = "content-length:"

// Framing errors. Both leave the reader positioned for the next frame.
var (
	// ErrBadHeader reports a Content-Length header whose value is not a non-negative integer.
	ErrBadHeader = errors.New("invalid Content-Length header")

	// ErrFrameTooLarge reports a frame above MaxFrameSize; its body was skipped.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// FrameReader reads Content-Length framed messages:
//
//	Content-Length: N\r\n
//	\r\n
//	<N bytes>
//
// Blank lines between frames and unknown header lines are ignored.
// The declared length is authoritative; the body need not end in a newline.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame returns the next message body. It returns io.EOF when the stream
// ends between frames and io.ErrUnexpectedEOF when it ends inside one.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	length := -1
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if length >= 0 || strings.TrimSpace(line) != "" {
					return nil, io.ErrUnexpectedEOF
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length < 0 {
				continue // awaiting header
			}
			break // end of header block
		}

		if strings.HasPrefix(strings.ToLower(line), contentLengthHeader) {
			value := strings.TrimSpace(line[len(contentLengthHeader):])
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				f.resync()
				return nil, fmt.Errorf("%w: %q", ErrBadHeader, value)
			}
			length = n
		}
	}

	if length > MaxFrameSize {
		if _, err := io.CopyN(io.Discard, f.r, int64(length)); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	return body, nil
}

// resync drops the rest of a frame whose length is unknown: the remaining
// header lines, then everything up to the next Content-Length header or the
// end of input.
func (f *FrameReader) resync() {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	for {
		next, err := f.r.Peek(len(contentLengthHeader))
		if len(next) == len(contentLengthHeader) && strings.EqualFold(string(next), contentLengthHeader) {
			return
		}
		if err != nil {
			_, _ = f.r.Discard(f.r.Buffered())
			return
		}
		_, _ = f.r.Discard(1)
	}
}

// WriteFrame writes body with its Content-Length header and flushes.
func WriteFrame(w *bufio.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Flush()
}
