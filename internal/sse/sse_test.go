package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkedReader returns one chunk per Read call.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var got []string
	if err := Read(context.Background(), r, func(s string) { got = append(got, s) }); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return got
}

func TestReadSingleDeltaThenDone(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n" + "data: [DONE]\n"
	got := collect(t, strings.NewReader(stream))
	if strings.Join(got, "") != "Hi" || len(got) != 1 {
		t.Fatalf("deltas = %q, want [\"Hi\"]", got)
	}
}

func TestReadJSONSplitAcrossChunks(t *testing.T) {
	r := &chunkedReader{chunks: []string{
		"data: {\"choices\":[{\"delta\":{\"con",
		"tent\":\"Hel\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
		"data: [DONE]\n",
	}}
	got := collect(t, r)
	if strings.Join(got, "") != "Hello" {
		t.Fatalf("deltas = %q, want Hello", got)
	}
}

func TestReadIgnoresCommentsBlankLinesAndCRLF(t *testing.T) {
	stream := ": keep-alive\r\n\r\n" +
		"event: message\r\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\r\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\r\n" +
		"data: [DONE]\r\n"
	got := collect(t, strings.NewReader(stream))
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("deltas = %q", got)
	}
}

func TestReadContinuesAfterDone(t *testing.T) {
	// [DONE] ends the parse pass only; later lines are still read.
	r := &chunkedReader{chunks: []string{
		"data: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
	}}
	got := collect(t, r)
	if strings.Join(got, "") != "ab" {
		t.Fatalf("deltas = %q, want ab", got)
	}
}

func TestReadFlushesUnterminatedTail(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}"
	got := collect(t, strings.NewReader(stream))
	if strings.Join(got, "") != "xy" {
		t.Fatalf("deltas = %q, want xy", got)
	}
}

func TestReadDropsMalformedLineAtEOF(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {broken\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"
	got := collect(t, strings.NewReader(stream))
	if strings.Join(got, "") != "ab" {
		t.Fatalf("deltas = %q, want ab", got)
	}
}

func TestReadStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Read(ctx, strings.NewReader("data: [DONE]\n"), func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
