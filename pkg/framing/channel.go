package framing

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// ReadChunkSize is the initial receive buffer; reads are issued into
	// whatever space remains in it before it grows.
	ReadChunkSize = 8 * 1024

	// DefaultMaxFrameSize bounds the logical buffer for one frame.
	DefaultMaxFrameSize = 64 << 20
)

// ErrIncompleteFrame reports that the stream ended inside a frame.
var ErrIncompleteFrame = errors.New("stream ended inside an incomplete frame")

// Channel sends and receives framed JSON values over one byte stream.
// Receive and Send may be used from different goroutines; concurrent
// Sends are serialized.
type Channel struct {
	scanner *bufio.Scanner
	framer  Framer

	writeMu sync.Mutex
	w       io.Writer

	// OnDiscard, when set, is called for every frame that failed to decode.
	OnDiscard func(frame []byte, err error)
}

// ChannelOption configures a Channel.
type ChannelOption func(*channelOptions)

type channelOptions struct {
	maxFrame int
}

// WithMaxFrameSize caps the number of bytes buffered for a single frame.
func WithMaxFrameSize(n int) ChannelOption {
	return func(o *channelOptions) {
		if n > 0 {
			o.maxFrame = n
		}
	}
}

// NewChannel wraps rw using framer. A nil framer selects Brace.
func NewChannel(rw io.ReadWriter, framer Framer, opts ...ChannelOption) *Channel {
	o := channelOptions{maxFrame: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	if framer == nil {
		framer = Brace{}
	}

	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, ReadChunkSize), o.maxFrame)
	split := framer.Split
	if r, ok := framer.(resumable); ok {
		split = r.splitter()
	}
	scanner.Split(split)

	return &Channel{scanner: scanner, framer: framer, w: rw}
}

// Framer returns the framing strategy in use.
func (c *Channel) Framer() Framer {
	return c.framer
}

// Receive returns the next complete frame. It returns io.EOF when the
// stream closed cleanly between frames and ErrIncompleteFrame when it
// closed in the middle of one. The returned slice is only valid until the
// next call.
func (c *Channel) Receive() ([]byte, error) {
	if c.scanner.Scan() {
		return c.scanner.Bytes(), nil
	}
	if err := c.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("frame exceeds buffer limit: %w", err)
		}
		return nil, err
	}
	return nil, io.EOF
}

// ReceiveJSON decodes the next well-formed frame into v. Frames that are
// not valid JSON for v are discarded (reported via OnDiscard) and reading
// continues; a decode failure never ends the stream.
func (c *Channel) ReceiveJSON(v any) error {
	for {
		frame, err := c.Receive()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(frame, v); err != nil {
			if c.OnDiscard != nil {
				c.OnDiscard(append([]byte(nil), frame...), err)
			}
			continue
		}
		return nil
	}
}

// Send writes v as a single JSON value with no trailing delimiter.
func (c *Channel) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes an already encoded frame.
func (c *Channel) SendRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
