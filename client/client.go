package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/chat"
	"chatrelay/common"
)

// Client is a streaming client for the relay API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	retry          RetryPolicy
	connectTimeout time.Duration
	limits         chat.Limits
}

// NewClient creates a relay client. An empty baseURL targets the configured
// local server.
func NewClient(baseURL string, config common.Config) *Client {
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	return &Client{
		baseURL: baseURL,
		// No overall timeout: exchanges are long-lived streams. The connect
		// phase is bounded separately.
		httpClient:     &http.Client{},
		retry:          RetryPolicyFromConfig(config.Retry),
		connectTimeout: config.Timeouts.Connect,
		limits:         config.ChatLimits(),
	}
}

// Selection names the provider endpoint and an optional model override.
type Selection struct {
	Provider string
	Model    string
}

// Callbacks is the surface a UI consumes. Any callback may be nil.
type Callbacks struct {
	// OnToken fires once per content frame.
	OnToken func(messageId string, content string)
	// OnError fires once with the terminal failure.
	OnError func(err error)
	// OnComplete fires when the exchange ends cleanly, with the full text.
	OnComplete func(messageId string, content string)
	// OnConnectionStatus fires once per connection state transition.
	OnConnectionStatus func(state ConnectionState)
}

// StreamChat runs one exchange: pre-flight validation, connection with
// retry/backoff, and frame accumulation into the conversation. The assistant
// reply is appended to conv as it streams. Returns the terminal error, if
// any; callbacks see the same outcome.
func (c *Client) StreamChat(ctx context.Context, conv *chat.Conversation, selection Selection, callbacks Callbacks) error {
	tracker := newStateTracker(callbacks.OnConnectionStatus)

	// Pre-flight: truncate oversized content rather than reject, then run the
	// same validation the backend will.
	for i := range conv.Messages {
		conv.Messages[i] = chat.TruncateMessage(conv.Messages[i], c.limits)
	}
	if err := chat.ValidateConversation(conv.Messages, c.limits); err != nil {
		tracker.transition(StateFailed)
		return c.fail(callbacks, err)
	}

	body, err := json.Marshal(chat.ChatRequest{Messages: conv.Messages, Model: selection.Model})
	if err != nil {
		tracker.transition(StateFailed)
		return c.fail(callbacks, err)
	}

	accumulator := NewAccumulator()
	// The in-progress assistant message survives reconnect attempts; a retry
	// restarts it rather than appending a second one.
	started := false

	for attempt := 0; ; attempt++ {
		tracker.transition(StateConnecting)
		attemptErr := c.attempt(ctx, body, conv, accumulator, selection, &started, tracker, callbacks)
		if attemptErr == nil {
			tracker.transition(StateDisconnected)
			return nil
		}

		// A caller-initiated abort closes the transport and stops here; no
		// further callbacks fire, unlike a genuine transport failure.
		if ctx.Err() != nil {
			return attemptErr
		}
		if !isRetryable(attemptErr) {
			tracker.transition(StateFailed)
			return c.fail(callbacks, attemptErr)
		}

		// Every transport failure passes through reconnecting, including the
		// last one before exhaustion.
		tracker.transition(StateReconnecting)
		if attempt+1 >= c.retry.MaxAttempts {
			tracker.transition(StateDisconnected)
			return c.fail(callbacks, &RelayError{
				Code:    CodeConnectionFailed,
				Message: fmt.Sprintf("all %d connection attempts failed: %v", c.retry.MaxAttempts, attemptErr),
				Partial: accumulator.Content(),
			})
		}
		select {
		case <-time.After(c.retry.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// attempt runs one connect-and-consume cycle.
func (c *Client) attempt(ctx context.Context, body []byte, conv *chat.Conversation, accumulator *Accumulator, selection Selection, started *bool, tracker *stateTracker, callbacks Callbacks) error {
	response, cancelAttempt, err := c.connect(ctx, selection.Provider, body)
	if err != nil {
		return err
	}
	defer cancelAttempt()
	defer response.Body.Close()

	tracker.transition(StateConnected)
	return c.consume(ctx, response.Body, conv, accumulator, selection, started, tracker, callbacks)
}

// connect opens the streaming request. Only the connect phase (until response
// headers arrive) is bounded by the connect timeout; the body stays open. The
// returned cancel tears down this attempt's transport and must be called once
// the body is no longer needed.
func (c *Client) connect(ctx context.Context, provider string, body []byte) (*http.Response, context.CancelFunc, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, fmt.Sprintf("%s/chat/%s", c.baseURL, provider), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	type connectResult struct {
		response *http.Response
		err      error
	}
	resultChan := make(chan connectResult, 1)
	go func() {
		response, err := c.httpClient.Do(req)
		resultChan <- connectResult{response, err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			cancel()
			return nil, nil, result.err
		}
		if result.response.StatusCode != http.StatusOK {
			err := decodeHTTPError(result.response)
			result.response.Body.Close()
			cancel()
			return nil, nil, err
		}
		return result.response, cancel, nil
	case <-time.After(c.connectTimeout):
		// Tear down the in-flight request so only one connection per exchange
		// is ever active, and reap a response that races the cancellation.
		cancel()
		go func() {
			if result := <-resultChan; result.response != nil {
				result.response.Body.Close()
			}
		}()
		return nil, nil, &RelayError{
			Code:    CodeConnectionTimeout,
			Message: fmt.Sprintf("no response within %s", c.connectTimeout),
		}
	case <-ctx.Done():
		cancel()
		go func() {
			if result := <-resultChan; result.response != nil {
				result.response.Body.Close()
			}
		}()
		return nil, nil, ctx.Err()
	}
}

// consume reads the SSE stream to its terminal marker, folding frames into
// the accumulator and the conversation's in-progress assistant message.
func (c *Client) consume(ctx context.Context, body io.Reader, conv *chat.Conversation, accumulator *Accumulator, selection Selection, started *bool, tracker *stateTracker, callbacks Callbacks) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				// Stream ended without a terminal marker: a dropped
				// connection, worth a retry.
				return fmt.Errorf("stream ended before terminal marker")
			}
			return err
		}

		frame, errFrame, done, err := chat.ParseFrame(data)
		switch {
		case err != nil:
			// Malformed frame: surface it but keep what was accumulated.
			return &RelayError{
				Code:    CodeParseError,
				Message: err.Error(),
				Partial: accumulator.Content(),
			}
		case done:
			accumulator.Freeze()
			messageId := accumulator.CurrentId()
			content := accumulator.ContentFor(messageId)
			if callbacks.OnComplete != nil {
				callbacks.OnComplete(messageId, content)
			}
			return nil
		case errFrame != nil:
			return &RelayError{
				Code:    errorCode(errFrame.Error),
				Message: errFrame.Error,
				Partial: accumulator.Content(),
			}
		default:
			tracker.transition(StateStreaming)
			previousId := accumulator.CurrentId()
			if !accumulator.OnFrame(frame) {
				continue
			}
			if !*started {
				conv.Append(chat.ChatMessage{
					Role:        chat.RoleAssistant,
					OriginModel: selection.Provider,
				})
				*started = true
			} else if frame.Id != previousId {
				// A reconnected exchange streams under a fresh message id and
				// restarts the reply from the beginning. Drop the partial text
				// so the conversation matches what OnComplete will report.
				conv.Last().Content = ""
			}
			conv.Last().Content += frame.Delta.Content
			if callbacks.OnToken != nil {
				callbacks.OnToken(frame.Id, frame.Delta.Content)
			}
		}
	}
}

func (c *Client) fail(callbacks Callbacks, err error) error {
	log.Debug().Err(err).Msg("exchange failed")
	if callbacks.OnError != nil {
		callbacks.OnError(err)
	}
	return err
}

// httpError is a non-200 response to the connect request.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.message)
}

func decodeHTTPError(response *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	message := string(payload)
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		message = body.Error
	}
	return &httpError{status: response.StatusCode, message: message}
}

// isRetryable classifies a failure: transport errors, timeouts and server
// errors retry; client errors (validation, rate limiting) and in-stream
// relay errors do not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var hErr *httpError
	if errors.As(err, &hErr) {
		return hErr.status >= 500
	}
	var rErr *RelayError
	if errors.As(err, &rErr) {
		return rErr.Code == CodeConnectionTimeout
	}
	return true
}

// errorCode extracts the leading CODE from a "CODE: message" wire error,
// falling back to UNKNOWN_ERROR.
func errorCode(message string) string {
	for i, r := range message {
		if r == ':' {
			return message[:i]
		}
		if (r < 'A' || r > 'Z') && r != '_' {
			break
		}
	}
	return "UNKNOWN_ERROR"
}
