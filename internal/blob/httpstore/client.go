// Package httpstore moves files over plain HTTP: Client resolves http(s)
// URLs for the sync layer, and Handler serves a store's files so other
// machines can fetch what was published with a public base URL.
package httpstore

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/blob"
)

const (
	defaultHTTPTimeout        = 60 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	// DefaultMaxBodyBytes bounds a single download.
	DefaultMaxBodyBytes = 64 << 20
)

// defaultClient avoids http.DefaultClient, which has no timeouts.
func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// WithPrefixes restricts the client to URLs starting with one of prefixes.
func WithPrefixes(prefixes ...string) ClientOption {
	return func(c *Client) { c.prefixes = append(c.prefixes, prefixes...) }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) { c.maxBody = n }
}

// Client is a blob.Downloader for http and https URLs.
type Client struct {
	hc       *http.Client
	prefixes []string
	maxBody  int64
}

var _ blob.Downloader = (*Client)(nil)

// NewClient returns a Client. Without WithPrefixes it accepts every
// http(s) URL.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{hc: defaultClient(), maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CanDownloadURL(_ context.Context, url string) (bool, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false, nil
	}
	if len(c.prefixes) == 0 {
		return true, nil
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(url, p) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", url)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, blob.NotFound(url)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("fetch %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	if int64(len(data)) > c.maxBody {
		return nil, errors.Newf("fetch %s: body exceeds %d bytes", url, c.maxBody)
	}
	return data, nil
}
