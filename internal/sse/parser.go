package sse

import (
	"bytes"
	"strings"
)

const (
	// DataPrefix marks a payload-bearing SSE line.
	DataPrefix = "data: "
	// Done is the sentinel payload that terminates a logical stream.
	Done = "[DONE]"
)

// Parser splits a raw SSE byte stream into complete newline-delimited lines.
// Chunks may arrive with arbitrary boundaries, including boundaries inside a
// single JSON event; the trailing incomplete segment is carried over to the
// next Feed call so no line is ever lost or duplicated.
type Parser struct {
	carry []byte
}

// Feed appends chunk to the carry-over buffer and returns every complete line
// accumulated so far, in order. Trailing carriage returns are stripped.
func (p *Parser) Feed(chunk []byte) []string {
	p.carry = append(p.carry, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(p.carry, '\n')
		if i < 0 {
			return lines
		}
		line := strings.TrimRight(string(p.carry[:i]), "\r")
		p.carry = p.carry[i+1:]
		lines = append(lines, line)
	}
}

// Flush returns whatever remains in the carry-over buffer as a final line.
// Call it once the stream has ended; some upstreams omit the last newline.
func (p *Parser) Flush() (string, bool) {
	if len(p.carry) == 0 {
		return "", false
	}
	line := strings.TrimRight(string(p.carry), "\r")
	p.carry = nil
	if line == "" {
		return "", false
	}
	return line, true
}

// Payload extracts the JSON (or sentinel) payload from a "data: " line.
// Lines without the prefix carry no event and are reported as not ok.
func Payload(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")), true
}
