package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"chatrelay/chat"
	"chatrelay/llm"
)

const (
	codeNoContentReceived = "NO_CONTENT_RECEIVED"
	codeStreamTimeout     = "STREAM_TIMEOUT"
	codeUnknownError      = "UNKNOWN_ERROR"
)

// newMessageId mints the id shared by every frame of one exchange.
func newMessageId(provider string) string {
	return fmt.Sprintf("%s-%s", provider, ksuid.New().String())
}

func bindChatRequest(c *gin.Context) (chat.ChatRequest, bool) {
	var request chat.ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("malformed request body: %v", err)})
		return chat.ChatRequest{}, false
	}
	return request, true
}

// prepare runs the pre-stream stages of an exchange: conversation validation,
// model resolution, and provider construction. Any failure here happens before
// a single byte of content is produced.
func (ctrl *Controller) prepare(providerName string, request chat.ChatRequest) (llm.ResolvedModel, llm.Provider, error) {
	if err := chat.ValidateConversation(request.Messages, ctrl.config.ChatLimits()); err != nil {
		return llm.ResolvedModel{}, nil, err
	}

	providerConfig, ok := ctrl.config.Providers[providerName]
	if !ok {
		return llm.ResolvedModel{}, nil, &llm.ProviderError{
			Code:    llm.CodeProviderUnavailable,
			Message: fmt.Sprintf("unknown provider: %s", providerName),
		}
	}

	resolved, err := llm.ResolveModel(providerName, providerConfig, request.Model)
	if err != nil {
		return llm.ResolvedModel{}, nil, err
	}

	provider, err := ctrl.newProvider(providerName, ctrl.secretManager)
	if err != nil {
		return llm.ResolvedModel{}, nil, err
	}

	return resolved, provider, nil
}

// ChatStreamHandler relays one exchange as server-sent events. After headers
// are written, every outcome, success or failure, ends with exactly one
// terminal marker; failures ride inside the stream as an error frame first.
func (ctrl *Controller) ChatStreamHandler(c *gin.Context) {
	providerName := c.Param("provider")
	request, ok := bindChatRequest(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	stream := &sseStream{writer: c.Writer}
	defer stream.writeTerminal()

	messageId := newMessageId(providerName)

	resolved, provider, err := ctrl.prepare(providerName, request)
	if err != nil {
		stream.writeError(err.Error())
		return
	}

	ctrl.relay(c.Request.Context(), stream, messageId, provider, llm.Request{
		Messages: request.Messages,
		Model:    resolved,
	})
}

// relay drives the provider's delta channel and reframes each fragment onto
// the wire. Each pull of the next fragment is bounded by the stream_pull
// timeout.
func (ctrl *Controller) relay(ctx context.Context, stream *sseStream, messageId string, provider llm.Provider, request llm.Request) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltaChan := make(chan llm.Delta)
	providerDone := make(chan error, 1)
	go func() {
		providerDone <- provider.Stream(streamCtx, request, deltaChan)
	}()

	pullTimeout := ctrl.config.Timeouts.StreamPull
	timer := time.NewTimer(pullTimeout)
	defer timer.Stop()

	fragments := 0
	for {
		select {
		case delta := <-deltaChan:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(pullTimeout)
			if delta.Content == "" {
				continue
			}
			fragments++
			if err := stream.writeFrame(messageId, delta.Content); err != nil {
				// Client went away; stop pulling.
				log.Debug().Err(err).Str("messageId", messageId).Msg("stream write failed, abandoning exchange")
				return
			}

		case err := <-providerDone:
			if err != nil {
				stream.writeError(describeStreamError(err))
				return
			}
			if fragments == 0 {
				stream.writeError(fmt.Sprintf("%s: provider produced no content", codeNoContentReceived))
				return
			}
			return

		case <-timer.C:
			cancel()
			stream.writeError(fmt.Sprintf("%s: no fragment received within %s", codeStreamTimeout, pullTimeout))
			return

		case <-ctx.Done():
			// Request canceled by the client; the deferred terminal write
			// fails harmlessly.
			return
		}
	}
}

// describeStreamError renders a provider failure as the code-prefixed message
// the wire protocol carries. Errors that already carry a stable code pass
// through unchanged.
func describeStreamError(err error) string {
	var vErr *chat.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	var pErr *llm.ProviderError
	if errors.As(err, &pErr) {
		return pErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: provider stalled mid-stream", codeStreamTimeout)
	}
	return fmt.Sprintf("%s: %v", codeUnknownError, err)
}

// sseStream writes the exchange's frames. The terminal marker is written at
// most once no matter how the exchange ends.
type sseStream struct {
	writer   gin.ResponseWriter
	terminal bool
}

func (s *sseStream) writeFrame(messageId, content string) error {
	payload, err := json.Marshal(chat.StreamFrame{
		Id:    messageId,
		Delta: chat.Delta{Content: content},
	})
	if err != nil {
		return err
	}
	return s.writeData(payload)
}

func (s *sseStream) writeError(message string) {
	payload, err := json.Marshal(chat.ErrorFrame{Error: message})
	if err != nil {
		return
	}
	if err := s.writeData(payload); err != nil {
		log.Debug().Err(err).Msg("failed to write error frame")
	}
}

func (s *sseStream) writeTerminal() {
	if s.terminal {
		return
	}
	s.terminal = true
	if err := s.writeData([]byte(chat.TerminalMarker)); err != nil {
		log.Debug().Err(err).Msg("failed to write terminal marker")
	}
}

func (s *sseStream) writeData(payload []byte) error {
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.writer.Flush()
	return nil
}
