// Package credential предоставляет клиент внешнего эмитента сертификатов участия.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с эмитентом сертификатов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type issueRequest struct {
	Owner string `json:"owner"`
}

type issueResponse struct {
	ID int64 `json:"id"`
}

// NewClient создаёт HTTP-клиент для обращения к эмитенту по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Issue выпускает один сертификат на указанного владельца и возвращает его
// номер. Любая ошибка здесь считается фатальной для вызвавшего взноса.
func (c *Client) Issue(ctx context.Context, owner string) (int64, error) {
	if c == nil || c.baseURL == "" {
		return 0, fmt.Errorf("credential issuer not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(issueRequest{Owner: owner})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/credentials", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	return result.ID, nil
}
