package client

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
)

// AudioSnapshot mirrors the daemon's response shape for the trigger and
// status endpoints.
type AudioSnapshot struct {
	Title    string   `json:"title"`
	Segments []string `json:"segments"`
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	Total    int      `json:"total"`
	Error    string   `json:"error,omitempty"`
}

// Terminal reports whether generation has finished, successfully or not.
func (s AudioSnapshot) Terminal() bool {
	return s.Status == "completed" || s.Status == "error"
}

// Client talks to a papercastd instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchAudio asks the daemon for the current snapshot of a document's audio,
// kicking off synthesis if clips are still missing.
func (c *Client) FetchAudio(ctx context.Context, doi string) (AudioSnapshot, error) {
	body, err := json.Marshal(map[string]string{"doi": doi})
	if err != nil {
		return AudioSnapshot{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio", bytes.NewReader(body))
	if err != nil {
		return AudioSnapshot{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// AudioStatus polls the current snapshot without triggering synthesis.
func (c *Client) AudioStatus(ctx context.Context, doi string) (AudioSnapshot, error) {
	endpoint := fmt.Sprintf("%s/audio-status/%s", c.baseURL, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AudioSnapshot{}, err
	}

	return c.do(req)
}

// StreamURL returns the daemon's proxy URL for one clip.
func (c *Client) StreamURL(doi string, index int) string {
	return fmt.Sprintf("%s/stream/%s/%d", c.baseURL, url.PathEscape(doi), index)
}

// OpenClip fetches a clip's MP3 bytes as a stream. The caller owns the
// returned reader and must close it.
func (c *Client) OpenClip(ctx context.Context, clipURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clipURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch clip: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch clip: unexpected status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

func (c *Client) do(req *http.Request) (AudioSnapshot, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return AudioSnapshot{}, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AudioSnapshot{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return AudioSnapshot{}, fmt.Errorf("%s: %s", req.URL.Path, apiErr.Error)
		}
		return AudioSnapshot{}, fmt.Errorf("%s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	var snap AudioSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return AudioSnapshot{}, fmt.Errorf("decode response: %w", err)
	}

	return snap, nil
}
