// Package api - Einfache API-Methoden des Clients.
// Dieses Modul enthaelt alle nicht-streaming API-Methoden.

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Start begins a new sampling session and returns its first step.
func (c *Client) Start(ctx context.Context) (*StepResponse, error) {
	var resp StepResponse
	if err := c.do(ctx, http.MethodPost, "/api/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Next advances the session key by one step. A key that is unknown or
// already finished yields a [StatusError] with code 404.
func (c *Client) Next(ctx context.Context, key string) (*StepResponse, error) {
	var resp StepResponse
	if err := c.do(ctx, http.MethodPost, "/api/next", &NextRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message sends a raw start or next message.
func (c *Client) Message(ctx context.Context, req *MessageRequest) (*StepResponse, error) {
	var resp StepResponse
	if err := c.do(ctx, http.MethodPost, "/api/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel releases a session before it reaches step 0.
func (c *Client) Cancel(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(key), nil, nil)
}

// Sessions lists the sessions held by the server.
func (c *Client) Sessions(ctx context.Context) (*SessionsResponse, error) {
	var resp SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Schedule returns the server's noise schedule.
func (c *Client) Schedule(ctx context.Context) (*ScheduleResponse, error) {
	var resp ScheduleResponse
	if err := c.do(ctx, http.MethodGet, "/api/schedule", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists up to limit completed samples, newest first. A limit of
// zero uses the server default.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryImage returns the PNG recorded for key.
func (c *Client) HistoryImage(ctx context.Context, key string) ([]byte, error) {
	var png []byte
	if err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(key)+"/image", nil, &png); err != nil {
		return nil, err
	}
	return png, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version returns the ddpm server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
