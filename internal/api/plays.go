package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetPlayerPlays returns the account's plays, optionally filtered by
// backend status ("pending" or "settled"; empty for all).
func (c *Client) GetPlayerPlays(ctx context.Context, account, status string) ([]Play, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}

	var resp PlaysResponse
	if err := c.get(ctx, "/player/"+url.PathEscape(account)+"/plays", query, &resp); err != nil {
		return nil, fmt.Errorf("get player plays: %w", err)
	}

	return resp.Plays, nil
}

// GetPlayByDeployHash returns the play recorded for an entry deploy hash.
// A play the backend has not indexed yet yields an error matching ErrNotFound.
func (c *Client) GetPlayByDeployHash(ctx context.Context, deployHash string) (*Play, error) {
	var play Play
	if err := c.get(ctx, "/play/"+url.PathEscape(deployHash), nil, &play); err != nil {
		return nil, fmt.Errorf("get play %s: %w", deployHash, err)
	}

	return &play, nil
}
