package guide

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plexiptv/tuner/internal/config"
)

func rakutenFixture(page, totalPages int) map[string]any {
	return map[string]any{
		"data": []map[string]any{
			{
				"type":         "live_channels",
				"id":           "channel-" + map[int]string{1: "a", 2: "b"}[page],
				"numerical_id": page,
				"title":        "Channel <" + map[int]string{1: "A", 2: "B"}[page] + ">",
				"images": map[string]any{
					"artwork":          "http://img/artwork.png",
					"artwork_negative": "http://img/negative.png",
				},
				"labels": map[string]any{
					"tags": []map[string]any{
						{"type": "tags", "id": "movies", "name": "Movies"},
					},
					"languages": []map[string]any{
						{"type": "languages", "id": "spa", "name": "Spanish"},
					},
				},
				"live_programs": []map[string]any{
					{
						"type":        "live_programs",
						"id":          "prog-1",
						"title":       "Feature & More",
						"subtitle":    "Part 1",
						"description": "A film",
						"starts_at":   "2025-06-01T12:00:00+00:00",
						"ends_at":     "2025-06-01T14:00:00+00:00",
						"images":      map[string]any{"snapshot": "http://img/still.jpg"},
						"episode_id":  "E01",
					},
				},
			},
		},
		"meta": map[string]any{
			"pagination": map[string]any{
				"page":        page,
				"per_page":    250,
				"total_pages": totalPages,
			},
		},
	}
}

func TestRakutenGeneratePagesAndMaps(t *testing.T) {
	var pagesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pagesSeen = append(pagesSeen, q.Get("page"))
		if got := q.Get("per_page"); got != "250" {
			t.Errorf("per_page = %q", got)
		}
		if got := q.Get("classification_id"); got != "5" {
			t.Errorf("classification_id = %q", got)
		}
		if got := q.Get("locale"); got != "es" {
			t.Errorf("locale = %q", got)
		}
		if got := q.Get("market_code"); got != "es" {
			t.Errorf("market_code = %q", got)
		}
		if q.Get("epg_starts_at") == "" || q.Get("epg_ends_at_timestamp") == "" {
			t.Error("missing window parameters")
		}
		page := 1
		if q.Get("page") == "2" {
			page = 2
		}
		json.NewEncoder(w).Encode(rakutenFixture(page, 2))
	}))
	defer srv.Close()

	r := &Rakuten{
		Config:  config.RakutenEPG{Enabled: true, ClassificationID: 5, Locale: "es", MarketCode: "es"},
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Now:     func() time.Time { return time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC) },
	}
	doc, err := r.Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(pagesSeen) != 2 || pagesSeen[0] != "1" || pagesSeen[1] != "2" {
		t.Fatalf("pages requested = %v", pagesSeen)
	}
	if len(doc.Channels) != 2 {
		t.Fatalf("channels = %d", len(doc.Channels))
	}

	ch := doc.Channels[0]
	if ch.ID != "channel-a" {
		t.Fatalf("id = %q", ch.ID)
	}
	if got := ch.DisplayName(); got != "Channel &lt;A&gt;" {
		t.Fatalf("display name = %q", got)
	}
	if ch.DisplayNames[0].Lang != "es" {
		t.Fatalf("lang = %q", ch.DisplayNames[0].Lang)
	}
	if len(ch.Icons) != 1 || ch.Icons[0].Src != "http://img/negative.png" {
		t.Fatalf("icons = %+v", ch.Icons)
	}

	if len(doc.Programmes) != 2 {
		t.Fatalf("programmes = %d", len(doc.Programmes))
	}
	p := doc.Programmes[0]
	if p.Channel != "channel-a" {
		t.Fatalf("programme channel = %q", p.Channel)
	}
	if p.Titles[0].Value != "Feature &amp; More" {
		t.Fatalf("title = %q", p.Titles[0].Value)
	}
	if !p.Start.Time.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", p.Start.Time)
	}
	if len(p.Categories) != 1 || p.Categories[0].Value != "Movies" {
		t.Fatalf("categories = %+v", p.Categories)
	}
	if len(p.Images) != 1 || p.Images[0].Type != "still" {
		t.Fatalf("images = %+v", p.Images)
	}
	if len(p.EpisodeNums) != 1 || p.EpisodeNums[0].System != "onscreen" || p.EpisodeNums[0].Value != "E01" {
		t.Fatalf("episode-num = %+v", p.EpisodeNums)
	}
}

func TestNewRakutenDisabled(t *testing.T) {
	if r := NewRakuten(config.RakutenEPG{Enabled: false}); r != nil {
		t.Fatal("disabled config should return nil adapter")
	}
	if r := NewRakuten(config.RakutenEPG{Enabled: true, Locale: "it"}); r == nil {
		t.Fatal("enabled config should return an adapter")
	}
}
