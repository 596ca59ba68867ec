package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chatrelay/chat"
	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/secrets"
)

// RunServer starts the relay's HTTP server in a background goroutine and
// returns it so the caller can shut it down.
func RunServer(config common.Config) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	ctrl, err := NewController(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize controller")
	}
	router := DefineRoutes(ctrl)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start API server")
		}
	}()

	return srv
}

type Controller struct {
	config        common.Config
	secretManager secrets.SecretManager
	limiter       *RateLimiter

	// newProvider is swapped out in tests to avoid real SDK clients.
	newProvider func(name string, sm secrets.SecretManager) (llm.Provider, error)
}

func NewController(config common.Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Controller{
		config:        config,
		secretManager: secrets.GetSecretManager(string(secrets.EnvSecretManagerType)),
		limiter:       NewRateLimiter(config.RateLimit),
		newProvider:   llm.NewProvider,
	}, nil
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	allowedOrigins, err := GetAllowedOrigins(ctrl.config.Server.Port)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid allowed origins")
	}
	r.Use(CORSMiddleware(allowedOrigins))

	r.GET("/health", ctrl.HealthHandler)
	r.GET("/health/:provider", ctrl.ProviderHealthHandler)

	chatRoutes := r.Group("/chat", RateLimitMiddleware(ctrl.limiter))
	chatRoutes.POST("/:provider", ctrl.ChatStreamHandler)
	chatRoutes.POST("/:provider/invoke", ctrl.ChatInvokeHandler)

	return r
}

// providerStatus reports whether a provider could serve a request right now:
// it is configured and its credential is present. No network call is made.
func (ctrl *Controller) providerStatus(name string) gin.H {
	_, configured := ctrl.config.Providers[name]
	available := false
	if configured {
		_, err := ctrl.newProvider(name, ctrl.secretManager)
		available = err == nil
	}
	return gin.H{
		"configured": configured,
		"available":  available,
	}
}

func (ctrl *Controller) HealthHandler(c *gin.Context) {
	providers := gin.H{}
	for _, name := range common.KnownProviders {
		providers[name] = ctrl.providerStatus(name)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": providers,
	})
}

func (ctrl *Controller) ProviderHealthHandler(c *gin.Context) {
	name := c.Param("provider")
	if _, ok := ctrl.config.Providers[name]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown provider: %s", name)})
		return
	}
	status := ctrl.providerStatus(name)
	status["provider"] = name
	c.JSON(http.StatusOK, status)
}

// ChatInvokeHandler runs a full exchange without streaming and returns the
// final text in a single JSON response.
func (ctrl *Controller) ChatInvokeHandler(c *gin.Context) {
	providerName := c.Param("provider")
	request, ok := bindChatRequest(c)
	if !ok {
		return
	}

	resolved, provider, err := ctrl.prepare(providerName, request)
	if err != nil {
		c.JSON(invokeStatus(err), gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctrl.config.Timeouts.StreamPull)
	defer cancel()

	content, err := provider.Invoke(ctx, llm.Request{Messages: request.Messages, Model: resolved})
	if err != nil {
		c.JSON(invokeStatus(err), gin.H{"error": describeStreamError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      newMessageId(providerName),
		"model":   resolved.Model,
		"content": content,
	})
}

// invokeStatus maps an exchange failure to an HTTP status for the
// non-streaming endpoint. The streaming endpoint never uses HTTP statuses for
// these; there the failure rides inside the stream.
func invokeStatus(err error) int {
	var vErr *chat.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest
	}
	var pErr *llm.ProviderError
	if errors.As(err, &pErr) {
		switch pErr.Code {
		case llm.CodeUnsupportedModel:
			return http.StatusBadRequest
		case llm.CodeProviderUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
