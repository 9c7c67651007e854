package clearinghouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client uploads batch files to the clearinghouse intake endpoint.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{url: cfg.URL, apiKey: cfg.APIKey, http: &http.Client{Timeout: timeout}}
}

type uploadResponse struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Upload posts the file at path as multipart field "file" and returns the
// remote path the clearinghouse stored it under.
func (c *Client) Upload(ctx context.Context, path, filename string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read batch file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("clearinghouse returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out uploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil || out.Path == "" {
		return filename, nil
	}
	return out.Path, nil
}
