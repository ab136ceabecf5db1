package tuner

import (
	"fmt"
	"html"
	"io"
	"log"
	"net/http"

	"github.com/plexiptv/tuner/internal/catalog"
	"github.com/plexiptv/tuner/internal/httpclient"
	"github.com/plexiptv/tuner/internal/playlist"
	"github.com/plexiptv/tuner/internal/probe"
	"github.com/plexiptv/tuner/internal/relay"
)

// StreamHandler serves live streams and the playlist debugging endpoint.
type StreamHandler struct {
	Relay   *relay.Relay
	Catalog func() *catalog.Catalog
	Client  *http.Client
}

// serveStream relays the requested source as MPEG-TS. The catalog's cached
// probe result for the URL drives the audio transcode decision; a URL the
// catalog has never seen still streams, with audio passed through.
func (h *StreamHandler) serveStream(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("an url is needed\n"))
		return
	}

	var cached *probe.Result
	if cat := h.Catalog(); cat != nil {
		cached = cat.FindByURL(rawURL)
	}
	if cached == nil {
		log.Printf("tuner: no catalog entry for %s, streaming without probe metadata", rawURL)
	}

	streamsActive.Inc()
	streamsTotal.Inc()
	defer streamsActive.Dec()

	w.Header().Set("Content-Type", "video/mp2t")
	if err := h.Relay.Stream(r.Context(), w, rawURL, cached); err != nil {
		log.Printf("tuner: stream %s failed: %v", rawURL, err)
	}
}

// servePlaylistDebug fetches and parses a playlist and renders its tracks
// as an HTML list, a quick way to eyeball what a provider URL contains.
func (h *StreamHandler) servePlaylistDebug(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("an url is needed\n"))
		return
	}

	client := h.Client
	if client == nil {
		client = httpclient.Default()
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("fetch playlist: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	body, err := httpclient.DecodedBody(resp)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode playlist: %v", err), http.StatusBadGateway)
		return
	}
	defer body.Close()

	tracks, err := playlist.Parse(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("parse playlist: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	for i, t := range tracks {
		if i > 0 {
			io.WriteString(w, "<br />")
		}
		title := t.Title
		if title == "" {
			title = "unknown"
		}
		fmt.Fprintf(w, "<b>%s</b> %s", html.EscapeString(title), html.EscapeString(t.URL))
	}
}
