package transport

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/richard-senior/podds/internal/logger"
)

const (
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	// maxBodyBytes caps how much of a response is read
	maxBodyBytes = 16 << 20
)

// StatusError is returned for any non 2xx response
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Fetcher performs GET requests and transparently decodes compressed bodies
type Fetcher struct {
	client  *http.Client
	headers http.Header
}

// NewFetcher wraps client. A nil client gets NewHTTPClient defaults
func NewFetcher(client *http.Client, headers http.Header) *Fetcher {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	for k, vs := range headers {
		for _, v := range vs {
			h.Set(k, v)
		}
	}
	return &Fetcher{client: client, headers: h}
}

// WithHeaders returns a copy of f that also sends headers
func (f *Fetcher) WithHeaders(headers http.Header) *Fetcher {
	h := f.headers.Clone()
	for k, vs := range headers {
		for _, v := range vs {
			h.Set(k, v)
		}
	}
	return &Fetcher{client: f.client, headers: h}
}

// NewHTTPClient returns a client that trusts the system roots plus an optional
// corporate bundle at ~/.ssh/zscaler_ca_bundle.pem
func NewHTTPClient(timeout time.Duration) *http.Client {
	rootCAs, err := x509.SystemCertPool()
	if err != nil || rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	if extra, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".ssh/zscaler_ca_bundle.pem")); err == nil {
		if ok := rootCAs.AppendCertsFromPEM(extra); ok {
			logger.Debug("Added corporate CA bundle to root CAs")
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{RootCAs: rootCAs},
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			// decoding is done by hand so brotli is covered too
			DisableCompression: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// Get fetches rawURL and returns the decoded body
func (f *Fetcher) Get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = f.headers.Clone()
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	reader, err := DecodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, URL: rawURL, Body: truncate(string(data), 256)}
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				se.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, se
	}
	return data, nil
}

// DecodeBody returns a reader over the response body honouring Content-Encoding
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return r, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	default:
		logger.Warn("Unknown content encoding:", enc)
		return io.NopCloser(resp.Body), nil
	}
}

// IsTimeout reports whether err came from a deadline or client timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
