package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p *Parser, chunks [][]byte) []string {
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, p.Feed(chunk)...)
	}
	if line, ok := p.Flush(); ok {
		lines = append(lines, line)
	}
	return lines
}

func TestParser_SingleChunk(t *testing.T) {
	p := &Parser{}
	lines := p.Feed([]byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n"))
	assert.Equal(t, []string{"data: {\"a\":1}", "", "data: {\"b\":2}"}, lines)
}

func TestParser_ChunkBoundaryInvariance(t *testing.T) {
	stream := []byte("data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n" +
		"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n" +
		"data: [DONE]\n\n")

	whole := feedAll(&Parser{}, [][]byte{stream})
	require.NotEmpty(t, whole)

	// Split at every possible boundary, including mid-JSON
	for cut := 1; cut < len(stream); cut++ {
		split := feedAll(&Parser{}, [][]byte{stream[:cut], stream[cut:]})
		assert.Equal(t, whole, split, "split at byte %d", cut)
	}

	// Byte-at-a-time delivery
	var byteChunks [][]byte
	for i := range stream {
		byteChunks = append(byteChunks, stream[i:i+1])
	}
	assert.Equal(t, whole, feedAll(&Parser{}, byteChunks))
}

func TestParser_CarriageReturns(t *testing.T) {
	p := &Parser{}
	lines := p.Feed([]byte("data: {\"a\":1}\r\n"))
	assert.Equal(t, []string{"data: {\"a\":1}"}, lines)
}

func TestParser_FlushWithoutTrailingNewline(t *testing.T) {
	p := &Parser{}
	assert.Empty(t, p.Feed([]byte("data: [DONE]")))

	line, ok := p.Flush()
	require.True(t, ok)
	assert.Equal(t, "data: [DONE]", line)

	// Flush drains the buffer
	_, ok = p.Flush()
	assert.False(t, ok)
}

func TestPayload(t *testing.T) {
	t.Run("data line", func(t *testing.T) {
		payload, ok := Payload("data: {\"x\":1}")
		require.True(t, ok)
		assert.Equal(t, "{\"x\":1}", payload)
	})

	t.Run("done sentinel", func(t *testing.T) {
		payload, ok := Payload("data: [DONE]")
		require.True(t, ok)
		assert.Equal(t, Done, payload)
	})

	t.Run("non data lines are skipped", func(t *testing.T) {
		for _, line := range []string{"", ": keepalive", "event: ping", "id: 42"} {
			_, ok := Payload(line)
			assert.False(t, ok, "line %q", line)
		}
	})
}
