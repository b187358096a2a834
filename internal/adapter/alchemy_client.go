package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blockso/blockso/internal/config"
	"github.com/blockso/blockso/internal/logging"
)

// AlchemyClient manages the Notify webhook via the Alchemy dashboard API.
type AlchemyClient struct {
	token     string
	webhookID string
	url       string
	client    *http.Client
	logger    *logging.Logger
}

// NewAlchemyClient creates a dashboard API client from config.
func NewAlchemyClient(cfg *config.AlchemyConfig) *AlchemyClient {
	return &AlchemyClient{
		token:     cfg.NotifyToken,
		webhookID: cfg.WebhookID,
		url:       cfg.DashboardURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logging.GetGlobalLogger().WithField("component", "alchemy_client"),
	}
}

// UpdateWebhookAddresses replaces the address list the Notify webhook
// watches with the given set.
func (c *AlchemyClient) UpdateWebhookAddresses(ctx context.Context, addresses []string) error {
	if c.token == "" || c.webhookID == "" {
		return fmt.Errorf("alchemy notify credentials not configured")
	}
	if addresses == nil {
		addresses = []string{}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"webhook_id": c.webhookID,
		"addresses":  addresses,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alchemy-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update webhook addresses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook update failed: HTTP %d - %s", resp.StatusCode, string(body))
	}

	c.logger.WithField("addresses", len(addresses)).Info("Updated Notify webhook address list")
	return nil
}
