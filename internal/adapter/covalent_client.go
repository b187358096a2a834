package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blockso/blockso/internal/config"
	"github.com/blockso/blockso/internal/logging"
	"golang.org/x/time/rate"
)

// Decoded log signatures Covalent reports for token transfer events.
const (
	ERC20TransferSignature  = "Transfer(indexed address from, indexed address to, uint256 value)"
	ERC721TransferSignature = "Transfer(indexed address from, indexed address to, indexed uint256 tokenId)"
)

// TokenLogoURL returns the Covalent-hosted logo for a mainnet token contract.
func TokenLogoURL(contractAddress string) string {
	return fmt.Sprintf("https://logos.covalenthq.com/tokens/1/%s.png", contractAddress)
}

// CovalentClient fetches per-address transaction history pages from the
// Covalent transactions_v2 endpoint.
type CovalentClient struct {
	apiKey   string
	baseURL  string
	chainID  int
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// CovalentTransaction is one item of a transactions_v2 page.
type CovalentTransaction struct {
	TxHash        string             `json:"tx_hash"`
	BlockSignedAt time.Time          `json:"block_signed_at"`
	TxOffset      *int               `json:"tx_offset"`
	Successful    bool               `json:"successful"`
	FromAddress   string             `json:"from_address"`
	ToAddress     *string            `json:"to_address"`
	Value         string             `json:"value"`
	LogEvents     []CovalentLogEvent `json:"log_events"`
}

// CovalentLogEvent is a log entry attached to a transaction item. Decoded is
// nil when Covalent could not decode the log.
type CovalentLogEvent struct {
	SenderAddress          string           `json:"sender_address"`
	SenderName             string           `json:"sender_name"`
	SenderContractTicker   string           `json:"sender_contract_ticker_symbol"`
	SenderContractDecimals int              `json:"sender_contract_decimals"`
	SenderLogoURL          string           `json:"sender_logo_url"`
	Decoded                *CovalentDecoded `json:"decoded"`
}

// CovalentDecoded is the decoded form of a log event.
type CovalentDecoded struct {
	Name      string          `json:"name"`
	Signature string          `json:"signature"`
	Params    []CovalentParam `json:"params"`
}

// CovalentParam is one decoded event parameter.
type CovalentParam struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
	Value   string `json:"value"`
}

// PageResult is one fetched history page. NextUpdateAt is the provider's
// hint for when fresher data will be available; the caller decides how to
// schedule around it.
type PageResult struct {
	Items        []CovalentTransaction
	HasMore      bool
	NextUpdateAt time.Time
}

type covalentResponse struct {
	Data struct {
		UpdatedAt    time.Time             `json:"updated_at"`
		NextUpdateAt time.Time             `json:"next_update_at"`
		Items        []CovalentTransaction `json:"items"`
		Pagination   struct {
			HasMore    bool `json:"has_more"`
			PageNumber int  `json:"page_number"`
			PageSize   int  `json:"page_size"`
		} `json:"pagination"`
	} `json:"data"`
	Error        bool    `json:"error"`
	ErrorMessage *string `json:"error_message"`
	ErrorCode    *int    `json:"error_code"`
}

// NewCovalentClient creates a Covalent API client from config.
func NewCovalentClient(cfg *config.CovalentConfig, chainID int) *CovalentClient {
	return &CovalentClient{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		chainID:  chainID,
		pageSize: cfg.PageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:   logging.GetGlobalLogger().WithField("component", "covalent_client"),
	}
}

// pageURL builds the transactions_v2 URL for an address and page number.
// Pages are newest first.
func (c *CovalentClient) pageURL(address string, pageNumber int) string {
	return fmt.Sprintf(
		"%s/%d/address/%s/transactions_v2/?key=%s&quote-currency=USD&format=JSON&block-signed-at-asc=false&no-logs=false&page-number=%d&page-size=%d",
		c.baseURL, c.chainID, address, c.apiKey, pageNumber, c.pageSize)
}

// FetchPage fetches one page of an address' transaction history.
func (c *CovalentClient) FetchPage(ctx context.Context, address string, pageNumber int) (*PageResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("covalent API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := c.doRequest(ctx, c.pageURL(address, pageNumber))
	if err != nil {
		return nil, err
	}

	var resp covalentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Error {
		msg := "unknown error"
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return nil, fmt.Errorf("covalent API error: %s", msg)
	}

	c.logger.WithFields(map[string]interface{}{
		"address":  address,
		"page":     pageNumber,
		"items":    len(resp.Data.Items),
		"has_more": resp.Data.Pagination.HasMore,
	}).Debug("Fetched history page")

	return &PageResult{
		Items:        resp.Data.Items,
		HasMore:      resp.Data.Pagination.HasMore,
		NextUpdateAt: resp.Data.NextUpdateAt,
	}, nil
}

// doRequest performs the HTTP request with retry on rate limiting (429)
func (c *CovalentClient) doRequest(ctx context.Context, url string) ([]byte, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to make request: %w", err)
			if attempt < maxRetries {
				delay := backoff(baseDelay, attempt, 30*time.Second)
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
				}
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			if attempt < maxRetries {
				delay := backoff(baseDelay, attempt, 60*time.Second)
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil {
						delay = time.Duration(seconds) * time.Second
					}
				}
				c.logger.WithField("delay", delay.String()).Warn("Rate limited by Covalent, retrying")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP error: %d - %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max {
		delay = max
	}
	return delay
}
