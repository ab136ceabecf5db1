// Package tuner serves the HDHomeRun-compatible HTTP surface: device
// discovery, channel lineup, program guide and live streams.
package tuner

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plexiptv/tuner/internal/catalog"
	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/guide"
	"github.com/plexiptv/tuner/internal/relay"
	"github.com/plexiptv/tuner/internal/store"
)

// Server runs the tuner emulator. Handlers are kept so UpdateCatalog can
// swap in a refreshed catalog without restart.
type Server struct {
	Addr   string
	Config *config.Config
	Store  *store.Store
	Relay  *relay.Relay
	Client *http.Client // playlist debug fetches

	mu         sync.RWMutex
	catalog    *catalog.Catalog
	lastUpdate time.Time
}

// UpdateCatalog swaps the served catalog. Handlers pick it up on the next
// request; in-flight streams are unaffected.
func (s *Server) UpdateCatalog(cat *catalog.Catalog) {
	s.mu.Lock()
	s.catalog = cat
	s.lastUpdate = time.Now()
	s.mu.Unlock()
	if cat != nil {
		ok := len(cat.Successful())
		setCatalogMetrics(ok, len(cat.Results)-ok)
		log.Printf("tuner: catalog updated, %d channels", ok)
	}
}

// SetGuideStats records the outcome of the last guide generation for the
// metrics endpoint.
func (s *Server) SetGuideStats(stats guide.Stats) {
	setGuideMetrics(stats.Matched, stats.Synthetic)
}

// Catalog returns the currently served catalog, nil before the first update.
func (s *Server) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Handler builds the route table. Split from Run for tests.
func (s *Server) Handler() http.Handler {
	device := &Device{
		FriendlyName: s.Config.FriendlyName,
		TunerCount:   s.Config.TunerCount,
		Catalog:      s.Catalog,
	}
	stream := &StreamHandler{
		Relay:   s.Relay,
		Catalog: s.Catalog,
		Client:  s.Client,
	}

	mux := http.NewServeMux()
	mux.Handle("/device.xml", device)
	mux.Handle("/discover.json", device)
	mux.Handle("/lineup.json", device)
	mux.Handle("/lineup_status.json", device)
	mux.Handle("/lineup.post", device)
	mux.HandleFunc("/epg.xml", s.serveEPG)
	mux.HandleFunc("/m3u8", stream.servePlaylistDebug)
	mux.HandleFunc("/stream", stream.serveStream)
	mux.HandleFunc("/healthz", s.serveHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return logRequests(mux)
}

// Run serves until ctx is cancelled. The server carries no write timeout:
// /stream responses are open-ended live transport streams.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":26457"
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("tuner: listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("tuner: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("tuner: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) serveEPG(w http.ResponseWriter, r *http.Request) {
	data, err := guide.LoadGuideXML(s.Store)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no program guide generated yet: run the epg command first\n"))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(data)
}

// serveHealth returns 200 once a catalog is loaded, 503 before.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cat := s.catalog
	lastUpdate := s.lastUpdate
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if cat == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"loading"}`))
		return
	}
	body, _ := json.Marshal(map[string]interface{}{
		"status":       "ok",
		"channels":     len(cat.Successful()),
		"last_refresh": lastUpdate.Format(time.RFC3339),
	})
	w.Write(body)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr,
		)
	})
}
