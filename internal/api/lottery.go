package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GetCurrentLottery returns the current round and jackpot snapshot.
func (c *Client) GetCurrentLottery(ctx context.Context) (*LotteryCurrent, error) {
	var resp LotteryCurrent
	if err := c.get(ctx, "/lottery/current", nil, &resp); err != nil {
		return nil, fmt.Errorf("get current lottery: %w", err)
	}

	return &resp, nil
}

// Health checks backend liveness. The health route lives at the server
// root, outside the /api prefix.
func (c *Client) Health(ctx context.Context) error {
	root := strings.TrimSuffix(c.baseURL, "/api")
	if _, err := c.doURL(ctx, http.MethodGet, root+"/health"); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
