// Package recordclient talks to the file/stake persistence service that keeps stake records.
package recordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zetaflow/intentd/pkg/logger"
)

const stakePath = "/api/stake"

// StakeRecord is the payload persisted after a successful stake
type StakeRecord struct {
	FileID        string      `json:"file_id"`
	WalletAddress string      `json:"wallet_address"`
	Amount        json.Number `json:"amount"`
	ContentID     string      `json:"content_id"`
	StakeTime     string      `json:"stake_time,omitempty"`
	Filename      string      `json:"filename,omitempty"`
}

// apiResponse is the envelope every endpoint answers with
type apiResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Stakes  []StakeRecord `json:"stakes,omitempty"`
	Count   int           `json:"count,omitempty"`
}

// Client is a record API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a client for endpoint; an empty endpoint yields a client whose calls are no-ops
func New(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// Enabled reports whether an endpoint is configured
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// RecordStake persists a stake record
func (c *Client) RecordStake(ctx context.Context, record StakeRecord) error {
	if !c.Enabled() {
		return nil
	}
	if record.FileID == "" || record.WalletAddress == "" || record.Amount == "" || record.ContentID == "" {
		return fmt.Errorf("stake record is missing required fields")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode stake record: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+stakePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("record API rejected stake: %s", resp.Message)
	}
	c.logger.Debug("Recorded stake of %s on file %s for %s", record.Amount, record.FileID, record.WalletAddress)
	return nil
}

// FetchStakes lists the stake records of walletAddress, newest first
func (c *Client) FetchStakes(ctx context.Context, walletAddress string) ([]StakeRecord, error) {
	if !c.Enabled() {
		return []StakeRecord{}, nil
	}
	query := url.Values{}
	query.Set("wallet_address", walletAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+stakePath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("record API returned failure: %s", resp.Message)
	}
	if resp.Stakes == nil {
		return []StakeRecord{}, nil
	}
	return resp.Stakes, nil
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call record API: %v", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return &apiResp, nil
}

func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
