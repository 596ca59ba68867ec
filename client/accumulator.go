package client

import (
	"strings"

	"github.com/rs/zerolog/log"

	"chatrelay/chat"
)

// Accumulator folds stream frames into complete assistant messages, keyed by
// message id. Once an id is frozen by the terminal marker, later frames for
// it are dropped.
type Accumulator struct {
	builders map[string]*strings.Builder
	frozen   map[string]struct{}
	// currentId is the id of the in-progress message, empty before the first
	// frame of an exchange.
	currentId string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		builders: make(map[string]*strings.Builder),
		frozen:   make(map[string]struct{}),
	}
}

// OnFrame appends one frame's content. It reports whether the frame was
// accepted; frames for a frozen id are logged and dropped.
func (a *Accumulator) OnFrame(frame *chat.StreamFrame) bool {
	if _, frozen := a.frozen[frame.Id]; frozen {
		log.Warn().Str("messageId", frame.Id).Msg("dropping frame for completed message")
		return false
	}

	builder, ok := a.builders[frame.Id]
	if !ok {
		builder = &strings.Builder{}
		a.builders[frame.Id] = builder
	}
	a.currentId = frame.Id
	builder.WriteString(frame.Delta.Content)
	return true
}

// Freeze marks the in-progress message complete. Frames arriving for it
// afterwards are dropped.
func (a *Accumulator) Freeze() {
	if a.currentId != "" {
		a.frozen[a.currentId] = struct{}{}
	}
}

// CurrentId returns the id of the in-progress message, or "" before the
// first frame.
func (a *Accumulator) CurrentId() string {
	return a.currentId
}

// Content returns the text accumulated so far for the in-progress message.
func (a *Accumulator) Content() string {
	if builder, ok := a.builders[a.currentId]; ok {
		return builder.String()
	}
	return ""
}

// ContentFor returns the accumulated text for a specific message id.
func (a *Accumulator) ContentFor(messageId string) string {
	if builder, ok := a.builders[messageId]; ok {
		return builder.String()
	}
	return ""
}
