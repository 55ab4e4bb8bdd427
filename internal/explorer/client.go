// Package explorer fetches wallet transaction history from an
// Etherscan-compatible block explorer API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL           = "https://api.etherscan.io/api"
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 1 * time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMult       = 2.0
	DefaultPageSize          = 10000
	DefaultRequestsPerSecond = 5
)

// Explorer actions, one per record stream.
const (
	ActionNormal   = "txlist"
	ActionToken    = "tokentx"
	ActionInternal = "txlistinternal"
)

// ErrRateLimited is returned when the explorer keeps refusing for rate limits.
var ErrRateLimited = errors.New("explorer rate limited")

// APIError is a non-retryable error reported by the explorer.
type APIError struct {
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer error: %s: %s", e.Message, e.Result)
}

// Client calls the account module of an Etherscan-style API.
type Client struct {
	baseURL     string
	apiKey      string
	chainID     int
	pageSize    int
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	log         *logger.Entry
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sets the explorer API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithChainID selects a chain on multichain explorer endpoints. Zero omits it.
func WithChainID(id int) ClientOption {
	return func(c *Client) {
		c.chainID = id
	}
}

// WithPageSize sets the offset parameter used for pagination.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRequestsPerSecond throttles outgoing requests. Zero disables throttling.
func WithRequestsPerSecond(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a new explorer client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		pageSize:    DefaultPageSize,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		log:         logger.Get().WithComponent("explorer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the explorer response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NormalTransactions returns every native transaction of wallet.
func (c *Client) NormalTransactions(ctx context.Context, wallet common.Address) ([]domain.RawRecord, error) {
	return c.list(ctx, ActionNormal, wallet)
}

// TokenTransfers returns every ERC-20 transfer touching wallet.
func (c *Client) TokenTransfers(ctx context.Context, wallet common.Address) ([]domain.RawRecord, error) {
	return c.list(ctx, ActionToken, wallet)
}

// InternalTransactions returns every internal transfer touching wallet.
func (c *Client) InternalTransactions(ctx context.Context, wallet common.Address) ([]domain.RawRecord, error) {
	return c.list(ctx, ActionInternal, wallet)
}

// list pages through action until a short page is returned.
func (c *Client) list(ctx context.Context, action string, wallet common.Address) ([]domain.RawRecord, error) {
	var all []domain.RawRecord

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("module", "account")
		params.Set("action", action)
		params.Set("address", strings.ToLower(wallet.Hex()))
		params.Set("startblock", "0")
		params.Set("endblock", "99999999")
		params.Set("page", strconv.Itoa(page))
		params.Set("offset", strconv.Itoa(c.pageSize))
		params.Set("sort", "asc")
		if c.apiKey != "" {
			params.Set("apikey", c.apiKey)
		}
		if c.chainID > 0 {
			params.Set("chainid", strconv.Itoa(c.chainID))
		}

		records, err := c.call(ctx, action, params)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", action, page, err)
		}
		all = append(all, records...)

		c.log.WithFields(logger.Fields{
			"action": action,
			"page":   page,
			"count":  len(records),
		}).Debug("Fetched explorer page")

		if len(records) < c.pageSize {
			return all, nil
		}
	}
}

// call performs one explorer request with retries and exponential backoff.
func (c *Client) call(ctx context.Context, action string, params url.Values) ([]domain.RawRecord, error) {
	endpoint := c.baseURL + "?" + params.Encode()

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			observability.RecordExplorerRequest(action, "error", time.Since(start).Seconds())
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		elapsed := time.Since(start).Seconds()
		if err != nil {
			observability.RecordExplorerRequest(action, "error", elapsed)
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			observability.RecordExplorerRequest(action, "rate_limited", elapsed)
			lastErr = fmt.Errorf("%w (429)", ErrRateLimited)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			observability.RecordExplorerRequest(action, "http_error", elapsed)
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		records, retry, err := decodeEnvelope(body)
		if err != nil {
			if retry {
				observability.RecordExplorerRequest(action, "rate_limited", elapsed)
				lastErr = err
				continue
			}
			observability.RecordExplorerRequest(action, "api_error", elapsed)
			return nil, err
		}

		observability.RecordExplorerRequest(action, "ok", elapsed)
		return records, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// decodeEnvelope extracts records from an explorer response. It reports
// retry=true for rate-limit refusals.
func decodeEnvelope(body []byte) (records []domain.RawRecord, retry bool, err error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("unmarshal response: %w", err)
	}

	if env.Status == "1" {
		if err := json.Unmarshal(env.Result, &records); err != nil {
			return nil, false, fmt.Errorf("unmarshal result: %w", err)
		}
		return records, false, nil
	}

	// Failures carry a string result.
	var result string
	_ = json.Unmarshal(env.Result, &result)

	if strings.Contains(strings.ToLower(env.Message), "no transactions found") ||
		strings.Contains(strings.ToLower(env.Message), "no records found") {
		return nil, false, nil
	}
	if strings.Contains(strings.ToLower(result), "rate limit") {
		return nil, true, fmt.Errorf("%w: %s", ErrRateLimited, result)
	}
	return nil, false, &APIError{Message: env.Message, Result: result}
}
