// Package stream frames research events for server push and reads them back.
//
// A frame is one line "data: <json>" followed by a blank line. Each frame is
// written with a single Write so it is never split across writes.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/mikeboe/deep-search/pkg/research"
)

const dataPrefix = "data: "

// ErrMalformedFrame marks a frame the decoder skipped.
var ErrMalformedFrame = errors.New("malformed frame")

// Encoder writes frames in the order Encode is called.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes one frame and flushes the writer when it can.
func (e *Encoder) Encode(f research.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	buf := make([]byte, 0, len(dataPrefix)+len(payload)+2)
	buf = append(buf, dataPrefix...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return err
	}
	if fl, ok := e.w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

// DefaultMaxLineBytes bounds one frame line. Longer lines are skipped.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// Decoder reads frames from a stream, possibly joined mid-way.
type Decoder struct {
	r *bufio.Reader
	// MaxLineBytes caps a single line; <= 0 means no cap.
	MaxLineBytes int
	// OnSkip, when set, is told about every frame that could not be parsed.
	OnSkip func(line string, err error)
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), MaxLineBytes: DefaultMaxLineBytes}
}

// Next returns the next well-formed frame. Malformed and oversized frames are
// skipped; io.EOF is returned once the stream is exhausted.
func (d *Decoder) Next() (research.Frame, error) {
	for {
		raw, tooLong, err := d.readLine()
		if err != nil {
			return research.Frame{}, err
		}
		if tooLong {
			d.skip("", fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedFrame, d.MaxLineBytes))
			continue
		}
		line := string(raw)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		f, err := ParseFrame(raw)
		if err != nil {
			d.skip(line, err)
			continue
		}
		return f, nil
	}
}

func (d *Decoder) skip(line string, err error) {
	if d.OnSkip != nil {
		d.OnSkip(line, err)
	}
}

// readLine returns the next line without its terminator. An oversized line is
// consumed to its end and reported through tooLong instead of being kept.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	var buf []byte
	read := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if !tooLong {
			content := bytes.TrimRight(chunk, "\r\n")
			if d.MaxLineBytes > 0 && len(buf)+len(content) > d.MaxLineBytes {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && read {
			err = nil
		}
		if err != nil {
			return nil, false, err
		}
		return bytes.TrimRight(buf, "\r\n"), tooLong, nil
	}
}

// ReadAll drains the decoder.
func (d *Decoder) ReadAll() ([]research.Frame, error) {
	var frames []research.Frame
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// ParseFrame parses one line, with or without the "data: " prefix.
func ParseFrame(line []byte) (research.Frame, error) {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte(strings.TrimSpace(dataPrefix)))
	line = bytes.TrimSpace(line)
	var f research.Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return research.Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return f, nil
}
