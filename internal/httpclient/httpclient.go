// Package httpclient provides the shared tuned HTTP client used by the
// playlist fetcher, guide loader and Rakuten adapter, plus transparent
// response decompression.
package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// Default returns the shared tuned HTTP client.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and the same transport
// settings as Default.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// DecodedBody wraps resp.Body with a decompressing reader when the response
// declares a Content-Encoding of gzip or br. Callers close the returned
// reader instead of resp.Body.
func DecodedBody(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return &decodedReader{r: gz, body: resp.Body}, nil
	case "br":
		return &decodedReader{r: brotli.NewReader(resp.Body), body: resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

type decodedReader struct {
	r    io.Reader
	body io.ReadCloser
}

func (d *decodedReader) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *decodedReader) Close() error {
	if c, ok := d.r.(io.Closer); ok {
		c.Close()
	}
	return d.body.Close()
}
