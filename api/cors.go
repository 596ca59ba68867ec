package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowedOrigins holds the parsed set of origins allowed to call the relay
// from a browser.
type AllowedOrigins struct {
	origins map[string]struct{}
}

// IsAllowed checks if the given origin is in the allowlist. An empty origin
// (non-browser clients) is always allowed.
func (ao *AllowedOrigins) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := ao.origins[origin]
	return ok
}

// ParseAllowedOrigins parses and validates a comma-separated list of origins.
// Each origin must be a URL with scheme and host and nothing after the host.
func ParseAllowedOrigins(originsStr string) (*AllowedOrigins, error) {
	origins := make(map[string]struct{})
	for _, origin := range strings.Split(originsStr, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid origin %q: must have scheme and host", origin)
		}
		if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
			return nil, fmt.Errorf("invalid origin %q: must be scheme://host[:port] only", origin)
		}

		origins[fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)] = struct{}{}
	}
	return &AllowedOrigins{origins: origins}, nil
}

// BuildDefaultAllowedOrigins allows the local UI origins for the relay's own
// port, plus the Vite dev server when developing the chat frontend.
func BuildDefaultAllowedOrigins(port int) *AllowedOrigins {
	origins := make(map[string]struct{})
	origins[fmt.Sprintf("http://localhost:%d", port)] = struct{}{}
	origins[fmt.Sprintf("http://127.0.0.1:%d", port)] = struct{}{}
	origins[fmt.Sprintf("http://[::1]:%d", port)] = struct{}{}

	if os.Getenv("CHATRELAY_ENV") == "development" {
		origins["http://localhost:5173"] = struct{}{}
		origins["http://127.0.0.1:5173"] = struct{}{}
	}

	return &AllowedOrigins{origins: origins}
}

// GetAllowedOrigins returns the configured allowlist: CHATRELAY_ALLOWED_ORIGINS
// when set, otherwise the local defaults for the given server port.
func GetAllowedOrigins(port int) (*AllowedOrigins, error) {
	envOrigins := os.Getenv("CHATRELAY_ALLOWED_ORIGINS")
	if envOrigins != "" {
		return ParseAllowedOrigins(envOrigins)
	}
	return BuildDefaultAllowedOrigins(port), nil
}

// CORSMiddleware returns a gin middleware that enforces the Origin allowlist
// and sets CORS headers, including preflight handling.
func CORSMiddleware(allowedOrigins *AllowedOrigins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if !allowedOrigins.IsAllowed(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}

			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")

			if c.Request.Method == http.MethodOptions {
				c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type")
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}

		c.Next()
	}
}
