package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
)

// Client is the API client for the backup history server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck reports whether the server answers /health
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", response.Status)
	}
	return nil
}

// GetRuns retrieves the recent runs of an organization, newest first
func (c *Client) GetRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/runs", url.PathEscape(org))
	var params url.Values
	if limit > 0 {
		params = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var response struct {
		Data []*domain.BackupRun `json:"data"`
	}
	if err := c.get(ctx, path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSummary retrieves the backup summary of an organization
func (c *Client) GetSummary(ctx context.Context, org string) (*domain.BackupSummary, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/summary", url.PathEscape(org))

	var response struct {
		Data *domain.BackupSummary `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves a run with its batch outcomes
func (c *Client) GetRun(ctx context.Context, id string) (*domain.RunDetails, error) {
	path := fmt.Sprintf("/api/v1/runs/%s", url.PathEscape(id))

	var response struct {
		Data *domain.RunDetails `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decodeError(resp.Status, body)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeError turns an {"error":{...}} body back into an AppError
func decodeError(status string, body []byte) error {
	var envelope struct {
		Error struct {
			Code    apperrors.ErrCode `json:"code"`
			Message string            `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("API error: %s - %s", status, string(body))
	}
	return &apperrors.AppError{Code: envelope.Error.Code, Message: envelope.Error.Message}
}
