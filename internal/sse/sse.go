// Package sse parses OpenAI-style streamed chat completions.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DoneSentinel marks the end of a completion stream.
const DoneSentinel = "[DONE]"

// maxBuffered bounds the unparsed tail kept between reads.
const maxBuffered = 1 << 20

// ErrBufferOverflow is returned when a stream never produces a parsable line.
var ErrBufferOverflow = errors.New("sse: unparsed data exceeds buffer limit")

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Read consumes r until EOF, calling onDelta with each non-empty
// choices[0].delta.content in order.
//
// A data payload that does not decode is treated as incomplete: it goes back
// onto the buffer and is retried once more bytes arrive. The [DONE] sentinel
// ends the current parse pass but not the read loop. At EOF the remaining
// buffer is parsed once and undecodable lines are dropped.
func Read(ctx context.Context, r io.Reader, onDelta func(string)) error {
	pending := ""
	readBuf := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(readBuf)
		if n > 0 {
			pending = parsePass(pending+string(readBuf[:n]), onDelta)
			if len(pending) > maxBuffered {
				return ErrBufferOverflow
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				flush(pending, onDelta)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("sse: read stream: %w", readErr)
		}
	}
}

// parsePass handles every complete line in data and returns what is left.
func parsePass(data string, onDelta func(string)) string {
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			return data
		}
		line := strings.TrimSuffix(data[:idx], "\r")
		rest := data[idx+1:]

		payload, ok := dataPayload(line)
		if !ok {
			data = rest
			continue
		}
		if payload == DoneSentinel {
			return rest
		}

		content, err := decodeDelta(payload)
		if err != nil {
			// Incomplete JSON: keep the line and wait for more bytes.
			return line + "\n" + rest
		}
		if content != "" {
			onDelta(content)
		}
		data = rest
	}
}

// flush parses whatever is left at end of stream, ignoring failures.
func flush(data string, onDelta func(string)) {
	if strings.TrimSpace(data) == "" {
		return
	}
	for _, raw := range strings.Split(data, "\n") {
		payload, ok := dataPayload(strings.TrimSuffix(raw, "\r"))
		if !ok || payload == DoneSentinel {
			continue
		}
		content, err := decodeDelta(payload)
		if err != nil || content == "" {
			continue
		}
		onDelta(content)
	}
}

// dataPayload extracts the payload of a "data:" line. Blank lines, comments
// and other fields report false.
func dataPayload(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") || strings.TrimSpace(line) == "" {
		return "", false
	}
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	return strings.TrimSpace(line[len("data: "):]), true
}

func decodeDelta(payload string) (string, error) {
	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return "", err
	}
	if len(c.Choices) == 0 {
		return "", nil
	}
	return c.Choices[0].Delta.Content, nil
}
