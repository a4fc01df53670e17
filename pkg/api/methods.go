package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"tgflow/pkg/update"
)

const longPollGrace = 10 * time.Second

// GetUpdates fetches the next batch of updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int, timeoutSeconds int, allowed []string) ([]update.Raw, error) {
	params := Params{
		"offset":  offset,
		"limit":   limit,
		"timeout": timeoutSeconds,
	}
	if len(allowed) > 0 {
		params["allowed_updates"] = allowed
	}

	result, err := c.call(ctx, "getUpdates", params, time.Duration(timeoutSeconds)*time.Second+longPollGrace)
	if err != nil {
		return nil, err
	}

	var updates []update.Raw
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*telego.User, error) {
	result, err := c.Invoke(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}

	var user telego.User
	if err := json.Unmarshal(result, &user); err != nil {
		return nil, fmt.Errorf("getMe: decode result: %w", err)
	}
	return &user, nil
}

// WebhookParams are the optional arguments of SetWebhook.
type WebhookParams struct {
	SecretToken        string
	AllowedUpdates     []string
	DropPendingUpdates bool
	MaxConnections     int
}

// SetWebhook points the bot at url.
func (c *Client) SetWebhook(ctx context.Context, url string, opts WebhookParams) error {
	params := Params{"url": url}
	if opts.SecretToken != "" {
		params["secret_token"] = opts.SecretToken
	}
	if len(opts.AllowedUpdates) > 0 {
		params["allowed_updates"] = opts.AllowedUpdates
	}
	if opts.DropPendingUpdates {
		params["drop_pending_updates"] = true
	}
	if opts.MaxConnections > 0 {
		params["max_connections"] = opts.MaxConnections
	}

	_, err := c.Invoke(ctx, "setWebhook", params)
	return err
}

// DeleteWebhook removes the webhook so that getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	_, err := c.Invoke(ctx, "deleteWebhook", Params{"drop_pending_updates": dropPending})
	return err
}

// GetWebhookInfo reports the current webhook status.
func (c *Client) GetWebhookInfo(ctx context.Context) (*telego.WebhookInfo, error) {
	result, err := c.Invoke(ctx, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}

	var info telego.WebhookInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("getWebhookInfo: decode result: %w", err)
	}
	return &info, nil
}
