package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plexiptv/tuner/internal/playlist"
	"github.com/plexiptv/tuner/internal/probe"
	"github.com/plexiptv/tuner/internal/store"
)

func testCatalog() *Catalog {
	return &Catalog{
		Date: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Results: []probe.Result{
			{
				OK:            true,
				ChannelNumber: 1,
				ChannelName:   "Rai 1",
				Track:         playlist.Track{URL: "http://host/rai1.m3u8", Title: "Rai 1"},
				Metadata: &probe.Metadata{Streams: []probe.Stream{
					{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920},
					{Index: 1, CodecType: "audio", CodecName: "aac", Profile: "LC"},
				}},
			},
			{
				OK:            false,
				ChannelNumber: 2,
				ChannelName:   "Dead Channel",
				Track:         playlist.Track{URL: "http://host/dead.m3u8", Title: "Dead Channel"},
				Error:         probe.ErrNoStreams,
			},
		},
	}
}

func TestSaveLoad_roundtrip(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	c := testCatalog()
	if err := c.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(st)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Results) != 2 {
		t.Fatalf("results: got %d want 2", len(loaded.Results))
	}
	r := loaded.Results[0]
	if !r.OK || r.ChannelNumber != 1 || r.Metadata == nil || len(r.Metadata.Streams) != 2 {
		t.Errorf("first result: %+v", r)
	}
	if loaded.Results[1].OK || loaded.Results[1].Error != probe.ErrNoStreams {
		t.Errorf("second result: %+v", loaded.Results[1])
	}
}

func TestLoad_missing(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	_, err = Load(st)
	if !errors.Is(err, ErrNoCatalog) {
		t.Errorf("Load on empty store: %v", err)
	}
}

func TestSuccessful_filtersFailures(t *testing.T) {
	c := testCatalog()
	ok := c.Successful()
	if len(ok) != 1 || ok[0].ChannelName != "Rai 1" {
		t.Errorf("Successful: %+v", ok)
	}
}

func TestFindByURL_exactMatchOnly(t *testing.T) {
	c := testCatalog()
	if r := c.FindByURL("http://host/rai1.m3u8"); r == nil || r.ChannelName != "Rai 1" {
		t.Errorf("FindByURL hit: %+v", r)
	}
	if r := c.FindByURL("http://host/rai1.m3u8?token=x"); r != nil {
		t.Errorf("FindByURL should require exact match, got %+v", r)
	}
}

func TestMetadataHD(t *testing.T) {
	hd := &probe.Metadata{Streams: []probe.Stream{{CodecType: "video", CodedWidth: 1920}}}
	if !hd.HD() {
		t.Error("coded_width 1920 should be HD")
	}
	sd := &probe.Metadata{Streams: []probe.Stream{{CodecType: "video", Width: 1280}}}
	if sd.HD() {
		t.Error("1280 wide should not be HD")
	}
	audioOnly := &probe.Metadata{Streams: []probe.Stream{{CodecType: "audio", CodecName: "aac"}}}
	if audioOnly.HD() {
		t.Error("audio-only should not be HD")
	}
}
