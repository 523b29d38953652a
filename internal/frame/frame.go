// Package frame implements the text frame convention shared by the probe and
// the sandbox: a headers JSON object, one blank line, a payload JSON object.
//
//	{"method":"do_something","id":0}
//
//	{"name":"Cas"}
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Separator sits between the headers block and the payload block.
const Separator = "\n\n"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingMethod  = errors.New("frame headers carry no method")
)

// RequestHeaders is the headers block of a client request.
type RequestHeaders struct {
	Method string `json:"method"`
	ID     int    `json:"id"`
}

// ResponseHeaders is the headers block of a server response.
type ResponseHeaders struct {
	ID int `json:"id"`
}

// Raw is a frame split into its two JSON blocks, neither decoded further.
type Raw struct {
	Headers json.RawMessage
	Payload json.RawMessage
}

// Encode serializes headers and payload independently and joins them with
// Separator. encoding/json escapes control characters inside strings, so neither
// block can contain a raw blank line.
func Encode(headers, payload any) (string, error) {
	h, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(h) + Separator + string(p), nil
}

// Decode splits text on the first blank line and checks both halves are JSON.
func Decode(text string) (*Raw, error) {
	headers, payload, ok := strings.Cut(text, Separator)
	if !ok {
		return nil, fmt.Errorf("%w: no blank line between headers and payload", ErrMalformedFrame)
	}

	headers = strings.TrimSpace(headers)
	payload = strings.TrimSpace(payload)
	if !json.Valid([]byte(headers)) {
		return nil, fmt.Errorf("%w: headers block is not JSON", ErrMalformedFrame)
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%w: payload block is not JSON", ErrMalformedFrame)
	}

	return &Raw{Headers: json.RawMessage(headers), Payload: json.RawMessage(payload)}, nil
}

// Request decodes the headers block as request headers.
func (r *Raw) Request() (RequestHeaders, error) {
	var h RequestHeaders
	if err := json.Unmarshal(r.Headers, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if h.Method == "" {
		return h, ErrMissingMethod
	}
	return h, nil
}

// Response decodes the headers block as response headers.
func (r *Raw) Response() (ResponseHeaders, error) {
	var h ResponseHeaders
	if err := json.Unmarshal(r.Headers, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return h, nil
}

// Lines returns line 0 and line 2 of text, the positions the headers and the
// payload occupy in a well formed frame. No JSON validation happens here; a frame
// with fewer than three lines yields ErrMalformedFrame.
func Lines(text string) (headers, payload string, err error) {
	lines := splitLines(text)
	if len(lines) < 3 {
		return "", "", fmt.Errorf("%w: want at least 3 lines, got %d", ErrMalformedFrame, len(lines))
	}
	return lines[0], lines[2], nil
}

// splitLines breaks on \n, \r\n, \r, \v, \f, \x1c-\x1e, U+0085, U+2028 and
// U+2029. A trailing line break does not produce an empty final line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if i < start {
			// second half of a \r\n pair
			continue
		}
		if !isLineBreak(r) {
			continue
		}
		lines = append(lines, text[start:i])
		start = i + utf8.RuneLen(r)
		if r == '\r' && start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
