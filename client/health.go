package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderStatus reports whether one provider can serve requests.
type ProviderStatus struct {
	Provider   string `json:"provider,omitempty"`
	Configured bool   `json:"configured"`
	Available  bool   `json:"available"`
}

// HealthReport is the relay's overall health response.
type HealthReport struct {
	Status    string                    `json:"status"`
	Providers map[string]ProviderStatus `json:"providers"`
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return decodeHTTPError(response)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed health response: %w", err)
	}
	return nil
}

// Health fetches the relay's overall health, including per-provider status.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var report HealthReport
	err := c.getJSON(ctx, "/health", &report)
	return report, err
}

// ProviderHealth fetches the status of a single provider.
func (c *Client) ProviderHealth(ctx context.Context, provider string) (ProviderStatus, error) {
	var status ProviderStatus
	err := c.getJSON(ctx, "/health/"+provider, &status)
	return status, err
}
