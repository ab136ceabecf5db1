package guide

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/plexiptv/tuner/internal/store"
	"github.com/plexiptv/tuner/internal/xmltv"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoaderLoadSortsAndDropsFailures(t *testing.T) {
	older := []byte(`<tv date="20250101000000 +0000"><channel id="old"/></tv>`)
	newer := []byte(`<tv date="20250601000000 +0000"><channel id="new"/></tv>`)

	mux := http.NewServeMux()
	mux.HandleFunc("/old.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write(older)
	})
	mux.HandleFunc("/new.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, newer))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l := &Loader{
		Sources: []string{srv.URL + "/old.xml", srv.URL + "/broken.xml", srv.URL + "/new.xml.gz"},
		Client:  srv.Client(),
	}
	docs := l.Load(context.Background())
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Channels[0].ID != "new" || docs[1].Channels[0].ID != "old" {
		t.Fatalf("not sorted freshest-first: %s then %s", docs[0].Channels[0].ID, docs[1].Channels[0].ID)
	}
}

func TestParseMaybeCompressedFallsBackToPlain(t *testing.T) {
	plain := []byte(`<tv><channel id="p"/></tv>`)
	doc, err := parseMaybeCompressed("test", plain)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Channels[0].ID != "p" {
		t.Fatalf("channel = %+v", doc.Channels[0])
	}

	doc, err = parseMaybeCompressed("test", gzipBytes(t, plain))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Channels[0].ID != "p" {
		t.Fatalf("channel = %+v", doc.Channels[0])
	}

	if _, err := parseMaybeCompressed("test", []byte("not xml at all")); err == nil {
		t.Fatal("expected parse error for garbage input")
	}
}

func TestSaveAndLoadGuide(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "tuner.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, err := LoadGuideXML(st); err != ErrNoGuide {
		t.Fatalf("err = %v, want ErrNoGuide", err)
	}

	doc := &xmltv.Document{
		Date:     xmltv.NewTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		Channels: []xmltv.Channel{{ID: "1", DisplayNames: []xmltv.Text{{Value: "One"}}}},
	}
	if err := SaveGuide(st, doc); err != nil {
		t.Fatal(err)
	}
	data, err := LoadGuideXML(st)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := xmltv.ParseBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Channels[0].ID != "1" {
		t.Fatalf("roundtrip channel = %+v", parsed.Channels[0])
	}
}
