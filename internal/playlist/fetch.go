package playlist

import (
	"context"
	"fmt"
	"net/http"

	"github.com/plexiptv/tuner/internal/httpclient"
)

// Fetch downloads and parses the playlist at url. A non-200 status or a
// parse failure degrades only this playlist; callers skip it and continue.
func Fetch(ctx context.Context, url string, client *http.Client) ([]Track, error) {
	if client == nil {
		client = httpclient.Default()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := httpclient.DecodedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	defer body.Close()
	return Parse(body)
}
