package chat

import (
	"encoding/json"
	"fmt"
)

// TerminalMarker is the literal sentinel ending every exchange's frame stream.
const TerminalMarker = "[DONE]"

// Delta is the incremental content payload of one stream frame.
type Delta struct {
	Content string `json:"content"`
}

// StreamFrame is one content frame of the backend-to-client wire protocol.
// An exchange is zero or more content frames, optionally one error frame,
// then exactly one terminal marker.
type StreamFrame struct {
	Id    string `json:"id"`
	Delta Delta  `json:"delta"`
}

// ErrorFrame reports a failure within the stream, always followed by the
// terminal marker.
type ErrorFrame struct {
	Error string `json:"error"`
}

// ChatRequest is the client-to-backend request body. The provider is selected
// by endpoint; Model optionally overrides the provider's default.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

// ParseFrame decodes one SSE data payload into either a terminal marker, an
// error frame, or a content frame. done is true for the terminal sentinel.
func ParseFrame(data []byte) (frame *StreamFrame, errFrame *ErrorFrame, done bool, err error) {
	if string(data) == TerminalMarker {
		return nil, nil, true, nil
	}

	// The error frame has no "id" key, so probe for it first.
	var ef ErrorFrame
	if err := json.Unmarshal(data, &ef); err == nil && ef.Error != "" {
		return nil, &ef, false, nil
	}

	var sf StreamFrame
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, nil, false, fmt.Errorf("malformed stream frame %q: %w", data, err)
	}
	if sf.Id == "" {
		return nil, nil, false, fmt.Errorf("stream frame missing message id: %q", data)
	}
	return &sf, nil, false, nil
}
