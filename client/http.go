package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/izavyalov-dev/octane-bridge/protocol"
)

// ErrNotFound is returned when the bridge answers 404.
var ErrNotFound = errors.New("client: not found")

// HTTPClient reads snapshots from a running bridge.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// LatestSnapshot fetches the snapshot of jobID. An empty rootID lets the bridge root it at the job.
func (c *HTTPClient) LatestSnapshot(ctx context.Context, jobID, rootID string) (protocol.SnapshotNode, error) {
	path := "/nga/api/v1/jobs/" + url.PathEscape(jobID) + "/builds/latest"
	if rootID != "" {
		path += "?root=" + url.QueryEscape(rootID)
	}
	var node protocol.SnapshotNode
	err := c.get(ctx, path, &node)
	return node, err
}

func (c *HTTPClient) Jobs(ctx context.Context) (protocol.JobsList, error) {
	var jobs protocol.JobsList
	err := c.get(ctx, "/nga/api/v1/jobs", &jobs)
	return jobs, err
}

func (c *HTTPClient) Status(ctx context.Context) (protocol.StatusInfo, error) {
	var status protocol.StatusInfo
	err := c.get(ctx, "/nga/api/v1/status", &status)
	return status, err
}

func (c *HTTPClient) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body protocol.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, body.Error)
		}
		if body.Error != "" {
			return fmt.Errorf("unexpected status %s: %s", resp.Status, body.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
