// Package transfer предоставляет клиент внешней системы переводов средств.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client выполняет переводы через внешнюю систему. Транспортные сбои и
// ответы 5xx повторяются автоматически; окончательный отказ получателя
// повторам не подлежит и возвращается с причиной.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferRejection struct {
	Reason string `json:"reason"`
}

// NewClient создаёт клиент переводов по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// Transfer переводит amount получателю to. Ошибка описывает причину отказа.
func (c *Client) Transfer(ctx context.Context, to string, amount int64) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("transfer system not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var rejection transferRejection
	if decodeErr := json.NewDecoder(resp.Body).Decode(&rejection); decodeErr == nil && rejection.Reason != "" {
		return fmt.Errorf("transfer rejected: %s", rejection.Reason)
	}

	return fmt.Errorf("unexpected status: %d", resp.StatusCode)
}
