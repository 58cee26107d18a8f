package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/retry"
)

const errorBodySnippet = 256

// Client performs GET requests against data portals with retry.
type Client struct {
	HTTP     *http.Client
	Retry    *retry.Config
	MaxBytes int64
}

// EnsureScheme prefixes https:// to catalog URLs stored without a scheme.
func EnsureScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// Get fetches rawURL with params and returns the body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, headers map[string]string) ([]byte, error) {
	target := EnsureScheme(rawURL)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return retry.DoIfRetryableWithResult(ctx, c.Retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
			return nil, &retry.StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		}

		body := io.Reader(resp.Body)
		if c.MaxBytes > 0 {
			body = io.LimitReader(resp.Body, c.MaxBytes+1)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rawURL, err)
		}
		if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
			return nil, fmt.Errorf("download of %s exceeds %d bytes", rawURL, c.MaxBytes)
		}
		return data, nil
	})
}

// GetJSON fetches rawURL and decodes the JSON body into dst.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, headers map[string]string, dst any) error {
	data, err := c.Get(ctx, rawURL, params, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}
