package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 30 * time.Second
)

// Invoker executes one named Bot API method.
type Invoker interface {
	Invoke(ctx context.Context, method string, params Params) (json.RawMessage, error)
}

// Options tune the HTTP side of a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client is the resty-backed Invoker for the Telegram Bot API.
type Client struct {
	token   string
	timeout time.Duration
	http    *resty.Client
	log     *slog.Logger
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter      int   `json:"retry_after,omitempty"`
		MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	} `json:"parameters,omitempty"`
}

// NewClient validates the token and builds a Client.
func NewClient(token string, opts Options, log *slog.Logger) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("bot token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL+"/bot"+token).
		SetHeader("Accept", "application/json")

	return &Client{
		token:   token,
		timeout: timeout,
		http:    httpClient,
		log:     log.With("component", "api"),
	}, nil
}

// Invoke calls method with params and returns the raw result document.
func (c *Client) Invoke(ctx context.Context, method string, params Params) (json.RawMessage, error) {
	return c.call(ctx, method, params, c.timeout)
}

func (c *Client) call(ctx context.Context, method string, params Params, timeout time.Duration) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.http.R().SetContext(callCtx)
	multipart := HasAttachment(params)
	if multipart {
		form, files, err := multipartParts(params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		req.SetMultipartFormData(form)
		for field, file := range files {
			if file.Path != "" {
				req.SetFile(field, file.Path)
				continue
			}
			reader, err := file.reader()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", method, err)
			}
			req.SetFileReader(field, file.fileName(), reader)
		}
	} else {
		if params == nil {
			params = Params{}
		}
		req.SetHeader("Content-Type", "application/json").SetBody(params)
	}

	c.log.Debug("Calling method", "operation", method, "multipart", multipart)

	resp, err := req.Post(method)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", method, c.redact(err.Error()))
	}

	var envelope response
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("%s: unexpected status %d: decode response: %w", method, resp.StatusCode(), err)
	}

	if !envelope.OK {
		apiErr := &Error{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
			apiErr.MigrateToChatID = envelope.Parameters.MigrateToChatID
		}
		return nil, apiErr
	}

	return envelope.Result, nil
}

// redact keeps the bot token out of transport error text, which embeds the request URL.
func (c *Client) redact(text string) string {
	return strings.ReplaceAll(text, c.token, "<token>")
}
