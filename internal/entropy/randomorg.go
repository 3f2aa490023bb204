package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"
	poolBatch         = 100
	poolLowWater      = 10
)

// Client draws true random numbers from random.org through a local pool.
// When the API is unreachable it falls back to crypto/rand, so Float never
// blocks the caller on an error.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu      sync.Mutex
	pool    []float64
	retryAt time.Time // no refill attempts before this after a failure

	// Fallbacks counts values served from crypto/rand.
	Fallbacks int
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Float returns a random float64 in [0, 1), refilling the pool when low.
func (c *Client) Float() float64 {
	if !c.Enabled() {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < poolLowWater && !time.Now().Before(c.retryAt) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := c.refill(ctx); err != nil {
			slog.Debug("random.org refill failed", "error", err)
			c.retryAt = time.Now().Add(time.Minute)
		}
		cancel()
	}

	if len(c.pool) == 0 {
		c.Fallbacks++
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill(ctx context.Context) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             poolBatch,
			"decimalPlaces": 14,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return errors.New(result.Error.Message)
	}

	for _, v := range result.Result.Random.Data {
		if v >= 0 && v < 1 {
			c.pool = append(c.pool, v)
		}
	}
	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
	return nil
}

// FromEnv returns a random.org client when apiKey is set and a seeded
// source otherwise.
func FromEnv(apiKey string, seed int64) Source {
	if c := NewClient(apiKey); c != nil {
		return c
	}
	return NewSeeded(seed)
}
