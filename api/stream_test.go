package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/chat"
	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/secrets"
)

// fakeProvider plays a scripted exchange.
type fakeProvider struct {
	deltas    []string
	streamErr error
	invoked   string
	// block makes Stream hang until the context is canceled, after any
	// scripted deltas were sent.
	block bool
}

func (f *fakeProvider) Stream(ctx context.Context, request llm.Request, deltaChan chan<- llm.Delta) error {
	for _, content := range f.deltas {
		select {
		case deltaChan <- llm.Delta{Content: content}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.streamErr
}

func (f *fakeProvider) Invoke(ctx context.Context, request llm.Request) (string, error) {
	if f.streamErr != nil {
		return "", f.streamErr
	}
	return f.invoked, nil
}

func newTestController(t *testing.T, provider llm.Provider) *Controller {
	t.Helper()
	ctrl, err := NewController(common.DefaultConfig())
	require.NoError(t, err)
	ctrl.newProvider = func(name string, sm secrets.SecretManager) (llm.Provider, error) {
		return provider, nil
	}
	return ctrl
}

func postChat(t *testing.T, ctrl *Controller, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := DefineRoutes(ctrl)
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)
	return recorder
}

func chatBody(t *testing.T, messages []chat.ChatMessage, model string) string {
	t.Helper()
	payload, err := json.Marshal(chat.ChatRequest{Messages: messages, Model: model})
	require.NoError(t, err)
	return string(payload)
}

func userSays(content string) []chat.ChatMessage {
	return []chat.ChatMessage{{Role: chat.RoleUser, Content: content}}
}

// parseSSE splits an SSE body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block: %q", block)
		payloads = append(payloads, strings.TrimPrefix(block, "data: "))
	}
	return payloads
}

func TestChatStreamHandler(t *testing.T) {
	t.Run("relays fragments and terminates", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"Hel", "lo ", "there"}})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), ""))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
		assert.Equal(t, "no", recorder.Header().Get("X-Accel-Buffering"))

		payloads := parseSSE(t, recorder.Body.String())
		require.Len(t, payloads, 4)
		assert.Equal(t, chat.TerminalMarker, payloads[3])

		var firstId string
		for i, payload := range payloads[:3] {
			frame, errFrame, done, err := chat.ParseFrame([]byte(payload))
			require.NoError(t, err)
			require.False(t, done)
			require.Nil(t, errFrame)
			assert.True(t, strings.HasPrefix(frame.Id, "gpt-"))
			if i == 0 {
				firstId = frame.Id
			} else {
				assert.Equal(t, firstId, frame.Id, "all frames share the exchange id")
			}
		}
		assert.Equal(t, []string{"Hel", "lo ", "there"}, framesContent(t, payloads[:3]))
	})

	t.Run("empty fragments never become frames", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"", "x", ""}})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), ""))

		payloads := parseSSE(t, recorder.Body.String())
		require.Len(t, payloads, 2)
		assert.Equal(t, []string{"x"}, framesContent(t, payloads[:1]))
		assert.Equal(t, chat.TerminalMarker, payloads[1])
	})

	t.Run("zero fragments yields NO_CONTENT_RECEIVED", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{})
		recorder := postChat(t, ctrl, "/chat/claude", chatBody(t, userSays("hi"), ""))

		requireErrorThenTerminal(t, recorder.Body.String(), "NO_CONTENT_RECEIVED")
	})

	t.Run("whitespace-only fragments still count as content", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"  "}})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), ""))

		payloads := parseSSE(t, recorder.Body.String())
		require.Len(t, payloads, 2)
		assert.Equal(t, []string{"  "}, framesContent(t, payloads[:1]))
	})

	t.Run("provider failure mid-stream keeps earlier frames", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{
			deltas:    []string{"partial"},
			streamErr: fmt.Errorf("upstream hiccup"),
		})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), ""))

		payloads := parseSSE(t, recorder.Body.String())
		require.Len(t, payloads, 3)
		assert.Equal(t, []string{"partial"}, framesContent(t, payloads[:1]))

		_, errFrame, _, err := chat.ParseFrame([]byte(payloads[1]))
		require.NoError(t, err)
		require.NotNil(t, errFrame)
		assert.Contains(t, errFrame.Error, "UNKNOWN_ERROR")
		assert.Equal(t, chat.TerminalMarker, payloads[2])
	})

	t.Run("validation failure streams the error code", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"never"}})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("   "), ""))

		requireErrorThenTerminal(t, recorder.Body.String(), "EMPTY_MESSAGE")
	})

	t.Run("unsupported model streams the allowed set", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"never"}})
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), "gpt-2"))

		body := recorder.Body.String()
		requireErrorThenTerminal(t, body, "UNSUPPORTED_MODEL")
		assert.Contains(t, body, "gpt-4o")
	})

	t.Run("unknown provider streams PROVIDER_UNAVAILABLE", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"never"}})
		recorder := postChat(t, ctrl, "/chat/grok", chatBody(t, userSays("hi"), ""))

		requireErrorThenTerminal(t, recorder.Body.String(), "PROVIDER_UNAVAILABLE")
	})

	t.Run("stalled provider times out with STREAM_TIMEOUT", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"first"}, block: true})
		ctrl.config.Timeouts.StreamPull = 30 * time.Millisecond
		recorder := postChat(t, ctrl, "/chat/gpt", chatBody(t, userSays("hi"), ""))

		payloads := parseSSE(t, recorder.Body.String())
		require.Len(t, payloads, 3)
		assert.Equal(t, []string{"first"}, framesContent(t, payloads[:1]))

		_, errFrame, _, err := chat.ParseFrame([]byte(payloads[1]))
		require.NoError(t, err)
		require.NotNil(t, errFrame)
		assert.Contains(t, errFrame.Error, "STREAM_TIMEOUT")
		assert.Equal(t, chat.TerminalMarker, payloads[2])
	})

	t.Run("malformed body is a plain 400, not a stream", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{deltas: []string{"never"}})
		recorder := postChat(t, ctrl, "/chat/gpt", "{not json")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.NotContains(t, recorder.Body.String(), chat.TerminalMarker)
	})
}

func framesContent(t *testing.T, payloads []string) []string {
	t.Helper()
	contents := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		frame, errFrame, done, err := chat.ParseFrame([]byte(payload))
		require.NoError(t, err)
		require.False(t, done)
		require.Nil(t, errFrame)
		contents = append(contents, frame.Delta.Content)
	}
	return contents
}

func requireErrorThenTerminal(t *testing.T, body string, code string) {
	t.Helper()
	payloads := parseSSE(t, body)
	require.Len(t, payloads, 2, "expected exactly an error frame and the terminal marker")

	_, errFrame, done, err := chat.ParseFrame([]byte(payloads[0]))
	require.NoError(t, err)
	require.False(t, done)
	require.NotNil(t, errFrame)
	assert.Contains(t, errFrame.Error, code)

	assert.Equal(t, chat.TerminalMarker, payloads[1])
}

func TestChatInvokeHandler(t *testing.T) {
	t.Run("returns the final text", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{invoked: "full answer"})
		recorder := postChat(t, ctrl, "/chat/gpt/invoke", chatBody(t, userSays("hi"), ""))

		require.Equal(t, http.StatusOK, recorder.Code)
		var response struct {
			Id      string `json:"id"`
			Model   string `json:"model"`
			Content string `json:"content"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "full answer", response.Content)
		assert.Equal(t, "gpt-4o", response.Model)
		assert.True(t, strings.HasPrefix(response.Id, "gpt-"))
	})

	t.Run("validation failure is a 400", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{invoked: "never"})
		recorder := postChat(t, ctrl, "/chat/gpt/invoke", chatBody(t, nil, ""))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "EMPTY_MESSAGE")
	})

	t.Run("provider failure is a 502", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{streamErr: fmt.Errorf("boom")})
		recorder := postChat(t, ctrl, "/chat/gpt/invoke", chatBody(t, userSays("hi"), ""))

		assert.Equal(t, http.StatusBadGateway, recorder.Code)
	})
}

func TestHealthHandlers(t *testing.T) {
	getPath := func(t *testing.T, ctrl *Controller, path string) *httptest.ResponseRecorder {
		t.Helper()
		gin.SetMode(gin.TestMode)
		router := DefineRoutes(ctrl)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		return recorder
	}

	t.Run("reports every known provider", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{})
		recorder := getPath(t, ctrl, "/health")

		require.Equal(t, http.StatusOK, recorder.Code)
		var response struct {
			Status    string                     `json:"status"`
			Providers map[string]map[string]bool `json:"providers"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "ok", response.Status)
		for _, name := range common.KnownProviders {
			status, ok := response.Providers[name]
			require.True(t, ok, name)
			assert.True(t, status["configured"], name)
			assert.True(t, status["available"], name)
		}
	})

	t.Run("unavailable provider is configured but not available", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{})
		ctrl.newProvider = func(name string, sm secrets.SecretManager) (llm.Provider, error) {
			return nil, &llm.ProviderError{Code: llm.CodeProviderUnavailable, Message: "no key"}
		}
		recorder := getPath(t, ctrl, "/health/gpt")

		require.Equal(t, http.StatusOK, recorder.Code)
		var status struct {
			Provider   string `json:"provider"`
			Configured bool   `json:"configured"`
			Available  bool   `json:"available"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
		assert.Equal(t, "gpt", status.Provider)
		assert.True(t, status.Configured)
		assert.False(t, status.Available)
	})

	t.Run("unknown provider is a 404", func(t *testing.T) {
		ctrl := newTestController(t, &fakeProvider{})
		recorder := getPath(t, ctrl, "/health/grok")
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
