// Package framing delimits JSON messages on a byte stream.
//
// Two strategies are provided. Brace is the legacy rule spoken by existing
// peers: it counts '{' and '}' bytes, skipping '{' inside string values but
// not '}', so a closing brace inside a string ends the frame early. Depth is
// string-aware and balances both objects and arrays; both ends of a
// connection must agree to use it.
package framing

import (
	"bufio"
	"fmt"
	"strings"
)

// Framer splits an accumulated buffer into frames. The signature matches
// bufio.SplitFunc so a Framer can drive a bufio.Scanner directly.
type Framer interface {
	Name() string
	Split(data []byte, atEOF bool) (advance int, token []byte, err error)
}

// Strategy names accepted by ByName.
const (
	BraceName = "brace"
	DepthName = "depth"
)

// ByName returns the framer registered under name. An empty name selects
// the legacy brace framer.
func ByName(name string) (Framer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BraceName:
		return Brace{}, nil
	case DepthName:
		return Depth{}, nil
	default:
		return nil, fmt.Errorf("unknown framing strategy %q (want %q or %q)", name, BraceName, DepthName)
	}
}

// Brace is the legacy brace-counting framer. A frame is complete once a '}'
// brings the running count back to zero (or below). A '{' inside a string
// value is not counted, but a '}' is, so a closing brace in a string still
// ends the frame early. Brackets are ignored.
type Brace struct{}

func (Brace) Name() string { return BraceName }

func (Brace) Split(data []byte, atEOF bool) (int, []byte, error) {
	var s braceScan
	return s.split(data, atEOF)
}

func (Brace) splitter() bufio.SplitFunc {
	return new(braceScan).split
}

// braceScan is the Brace state for one frame. It survives between calls
// so bytes already examined are not scanned again as the buffer grows.
type braceScan struct {
	pos      int
	depth    int
	inString bool
	escaped  bool
}

func (s *braceScan) split(data []byte, atEOF bool) (int, []byte, error) {
	for ; s.pos < len(data); s.pos++ {
		c := data[s.pos]
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			case c == '}':
				s.depth--
			}
		} else {
			switch c {
			case '"':
				s.inString = s.depth > 0
			case '{':
				s.depth++
			case '}':
				s.depth--
			}
		}
		if c == '}' && s.depth <= 0 {
			n := s.pos + 1
			*s = braceScan{}
			return n, data[:n], nil
		}
	}
	n, token, err := trailing(data, atEOF)
	if n > 0 {
		*s = braceScan{}
	}
	return n, token, err
}

// Depth is a bracket-depth framer that skips over string literals, so '}'
// and ']' inside strings never terminate a frame. Bytes preceding the first
// '{' or '[' are dropped.
type Depth struct{}

func (Depth) Name() string { return DepthName }

func (Depth) Split(data []byte, atEOF bool) (int, []byte, error) {
	var s depthScan
	return s.split(data, atEOF)
}

func (Depth) splitter() bufio.SplitFunc {
	return new(depthScan).split
}

// depthScan is the Depth state for one frame. Depth zero means no opener
// has been seen yet.
type depthScan struct {
	pos      int
	depth    int
	inString bool
	escaped  bool
}

func (s *depthScan) split(data []byte, atEOF bool) (int, []byte, error) {
	for ; s.pos < len(data); s.pos++ {
		c := data[s.pos]
		if s.depth == 0 {
			if c == '{' || c == '[' {
				if s.pos > 0 {
					// Drop the noise now so the buffer does not grow with it.
					n := s.pos
					*s = depthScan{}
					return n, nil, nil
				}
				s.depth = 1
			}
			continue
		}
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}
		switch c {
		case '"':
			s.inString = true
		case '{', '[':
			s.depth++
		case '}', ']':
			s.depth--
			if s.depth == 0 {
				n := s.pos + 1
				*s = depthScan{}
				return n, data[:n], nil
			}
		}
	}

	if s.depth == 0 {
		// Nothing but inter-frame noise so far.
		n := len(data)
		*s = depthScan{}
		return n, nil, nil
	}
	n, token, err := trailing(data, atEOF)
	if n > 0 {
		*s = depthScan{}
	}
	return n, token, err
}

// resumable framers hand out a stateful split function for a single
// stream, which keeps scanning linear in the frame size.
type resumable interface {
	splitter() bufio.SplitFunc
}

// trailing handles a buffer that holds no complete frame.
func trailing(data []byte, atEOF bool) (int, []byte, error) {
	if !atEOF || len(data) == 0 {
		return 0, nil, nil
	}
	if isBlank(data) {
		return len(data), nil, nil
	}
	return len(data), data, ErrIncompleteFrame
}

func isBlank(data []byte) bool {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}
