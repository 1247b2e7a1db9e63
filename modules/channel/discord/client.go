package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20 // 10 MiB
	defaultAPIURL    = "https://discord.com/api/v10"
	userAgent        = "DiscordBot (https://github.com/flemzord/chanreset, 1.0)"
)

// Client is a thin HTTP wrapper around the Discord REST API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a new Discord REST client authenticated as a bot.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "discord-rest",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// Client errors are the caller's problem, not an outage.
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
				}
				return err == nil
			},
		}),
	}
}

// request is one REST call. Body bytes are kept so retries can replay them.
type request struct {
	method      string
	path        string
	query       url.Values
	contentType string
	body        []byte
}

// do sends a JSON request and decodes the JSON response into T.
func do[T any](ctx context.Context, c *Client, method, path string, query url.Values, payload any) (*T, error) {
	req := request{method: method, path: path, query: query}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("discord: marshal %s %s request: %w", method, path, err)
		}
		req.body = data
		req.contentType = "application/json"
	}

	raw, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	var out T
	if len(raw) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("discord: decode %s %s response: %w", method, path, err)
	}
	return &out, nil
}

// send runs req through the circuit breaker, retrying 429 responses after
// the server's retry_after hint (max 3 attempts, exponential fallback).
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	backoff := initialBackoff
	for attempt := range maxRetries {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.attempt(ctx, r, target)
		})
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests || attempt == maxRetries-1 {
			return nil, err
		}
		if apiErr.RetryAfter > 0 {
			backoff = time.Duration(apiErr.RetryAfter * float64(time.Second))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("discord: %s %s: max retries exceeded", r.method, r.path)
}

func (c *Client) attempt(ctx context.Context, r request, target string) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("discord: create %s %s request: %w", r.method, r.path, err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord: %s %s request failed: %w", r.method, r.path, err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("discord: read %s %s response: %w", r.method, r.path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.RetryAfter == 0 {
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
			apiErr.RetryAfter = secs
		}
	}
	return nil, apiErr
}

// GetChannel fetches a channel by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	return do[Channel](ctx, c, http.MethodGet, "/channels/"+channelID, nil, nil)
}

// GetGuild fetches a guild by id.
func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	return do[Guild](ctx, c, http.MethodGet, "/guilds/"+guildID, nil, nil)
}

// GetMessages fetches one page of channel messages, newest first.
func (c *Client) GetMessages(ctx context.Context, channelID string, q MessageQuery) ([]Message, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	switch {
	case q.Around != "":
		params.Set("around", q.Around)
	case q.After != "":
		params.Set("after", q.After)
	case q.Before != "":
		params.Set("before", q.Before)
	}
	msgs, err := do[[]Message](ctx, c, http.MethodGet, "/channels/"+channelID+"/messages", params, nil)
	if err != nil {
		return nil, err
	}
	return *msgs, nil
}

// CreateGuildChannel creates a channel in a guild.
func (c *Client) CreateGuildChannel(ctx context.Context, guildID string, req CreateChannelRequest) (*Channel, error) {
	return do[Channel](ctx, c, http.MethodPost, "/guilds/"+guildID+"/channels", nil, req)
}

// DeleteChannel deletes a channel.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := do[Channel](ctx, c, http.MethodDelete, "/channels/"+channelID, nil, nil)
	return err
}

// ModifyChannelPositions reorders guild channels.
func (c *Client) ModifyChannelPositions(ctx context.Context, guildID string, updates []PositionUpdate) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodPatch, "/guilds/"+guildID+"/channels", nil, updates)
	return err
}

// GatewayBot returns the websocket URL to connect to.
func (c *Client) GatewayBot(ctx context.Context) (*GatewayInfo, error) {
	return do[GatewayInfo](ctx, c, http.MethodGet, "/gateway/bot", nil, nil)
}

// CreateMessageWithFile posts content with one attached file.
func (c *Client) CreateMessageWithFile(ctx context.Context, channelID, content, filename string, data []byte) (*Message, error) {
	payload, err := json.Marshal(CreateMessageRequest{
		Content:     content,
		Attachments: []Attachment{{ID: 0, Filename: filename}},
	})
	if err != nil {
		return nil, fmt.Errorf("discord: marshal message payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="payload_json"`)
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("discord: build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("discord: build multipart body: %w", err)
	}

	file, err := mw.CreateFormFile("files[0]", filename)
	if err != nil {
		return nil, fmt.Errorf("discord: build multipart body: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return nil, fmt.Errorf("discord: build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("discord: build multipart body: %w", err)
	}

	path := "/channels/" + channelID + "/messages"
	raw, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        path,
		contentType: mw.FormDataContentType(),
		body:        buf.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("discord: decode POST %s response: %w", path, err)
	}
	return &msg, nil
}
