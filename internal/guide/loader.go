// Package guide loads external program-guide feeds, reconciles them against
// the channel catalog and synthesizes the tuner's program guide.
package guide

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"

	"github.com/plexiptv/tuner/internal/httpclient"
	"github.com/plexiptv/tuner/internal/store"
	"github.com/plexiptv/tuner/internal/xmltv"
)

// ErrNoGuide is returned when the program guide has not been generated yet.
var ErrNoGuide = errors.New("no guide: generate the program guide first")

// Loader downloads guide documents from the configured sources plus the
// Rakuten adapter when enabled.
type Loader struct {
	Sources []string
	Rakuten *Rakuten // nil when disabled
	Client  *http.Client
}

// Load fetches every source in parallel and returns the successfully parsed
// documents sorted by generation date descending, so matching prefers the
// freshest feed. A source that fails to download or parse is dropped from
// this batch, never fatal.
func (l *Loader) Load(ctx context.Context) []*xmltv.Document {
	docs := make([]*xmltv.Document, len(l.Sources))
	var wg sync.WaitGroup
	for i, u := range l.Sources {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			doc, err := l.fetchOne(ctx, u)
			if err != nil {
				log.Printf("guide: source %s dropped: %v", u, err)
				return
			}
			docs[i] = doc
		}(i, u)
	}
	wg.Wait()

	valid := make([]*xmltv.Document, 0, len(docs)+1)
	for _, d := range docs {
		if d != nil {
			valid = append(valid, d)
		}
	}

	if l.Rakuten != nil {
		doc, err := l.Rakuten.Generate(ctx)
		if err != nil {
			log.Printf("guide: rakuten adapter failed: %v", err)
		} else if doc != nil {
			valid = append(valid, doc)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].EffectiveDate().After(valid[j].EffectiveDate())
	})
	return valid
}

func (l *Loader) fetchOne(ctx context.Context, url string) (*xmltv.Document, error) {
	client := l.Client
	if client == nil {
		client = httpclient.Default()
	}
	log.Printf("guide: downloading %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip, br")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	body, err := httpclient.DecodedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parseMaybeCompressed(url, raw)
}

// parseMaybeCompressed tries the body as a compressed document first and
// falls back to parsing it as plain text.
func parseMaybeCompressed(url string, raw []byte) (*xmltv.Document, error) {
	if dec, err := decompress(raw); err == nil {
		log.Printf("guide: parsing %s", url)
		if doc, perr := xmltv.ParseBytes(dec); perr == nil {
			return doc, nil
		}
	}
	log.Printf("guide: parsing %s as text", url)
	doc, err := xmltv.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

func decompress(raw []byte) ([]byte, error) {
	switch {
	case len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b:
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	case len(raw) >= 3 && raw[0] == 'B' && raw[1] == 'Z' && raw[2] == 'h':
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(raw)))
	case len(raw) >= 6 && raw[0] == 0xfd && bytes.HasPrefix(raw[1:], []byte("7zXZ\x00")):
		xr, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(xr)
	}
	return nil, errors.New("not compressed")
}

// SaveGuide persists the generated guide as one XMLTV document.
func SaveGuide(st *store.Store, doc *xmltv.Document) error {
	var buf strings.Builder
	if err := xmltv.Write(&buf, doc); err != nil {
		return err
	}
	return st.Put(store.KeyGuide, []byte(buf.String()))
}

// LoadGuideXML returns the persisted guide document bytes, or ErrNoGuide.
func LoadGuideXML(st *store.Store) ([]byte, error) {
	data, err := st.Get(store.KeyGuide)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoGuide
	}
	return data, err
}
