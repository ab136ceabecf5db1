package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/httpclient"
	"github.com/plexiptv/tuner/internal/xmltv"
)

// DefaultRakutenBaseURL is Rakuten TV's public live-channel listing.
const DefaultRakutenBaseURL = "https://gizmo.rakuten.tv/v3/live_channels"

// guideWindow is how far ahead the synthesized feeds cover.
const guideWindow = 72 * time.Hour

// Rakuten maps Rakuten TV's JSON listing into a GuideDocument.
type Rakuten struct {
	Config  config.RakutenEPG
	Client  *http.Client
	BaseURL string // "" = DefaultRakutenBaseURL
	Now     func() time.Time

	limiter *rate.Limiter
}

// NewRakuten returns the adapter for cfg, or nil when disabled.
func NewRakuten(cfg config.RakutenEPG) *Rakuten {
	if !cfg.Enabled {
		log.Print("rakuten: guide generation disabled")
		return nil
	}
	return &Rakuten{
		Config: cfg,
		// Be polite to the public endpoint while paging.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Response schema. Declaring it explicitly keeps upstream additions from
// breaking us and upstream removals from passing silently.
type rakutenResponse struct {
	Data []rakutenChannel `json:"data"`
	Meta struct {
		Pagination struct {
			Page       int `json:"page"`
			Count      int `json:"count"`
			PerPage    int `json:"per_page"`
			Offset     int `json:"offset"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

type rakutenChannel struct {
	Type                string `json:"type"`
	ID                  string `json:"id"`
	NumericalID         int    `json:"numerical_id"`
	Title               string `json:"title"`
	ChannelNumber       int    `json:"channel_number"`
	ContentAggregatorID string `json:"content_aggregator_id"`
	Images              *struct {
		Artwork         string `json:"artwork"`
		ArtworkNegative string `json:"artwork_negative"`
		Snapshot        string `json:"snapshot"`
	} `json:"images"`
	Labels *struct {
		Tags      []rakutenLabel `json:"tags"`
		Languages []rakutenLabel `json:"languages"`
	} `json:"labels"`
	LivePrograms []rakutenProgram `json:"live_programs"`
}

type rakutenLabel struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	NumericalID int    `json:"numerical_id"`
	Name        string `json:"name"`
}

type rakutenProgram struct {
	Type        string `json:"type"`
	NumericalID int    `json:"numerical_id"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	IsLive      bool   `json:"is_live"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Images      struct {
		Snapshot string `json:"snapshot"`
	} `json:"images"`
	EpisodeID string `json:"episode_id"`
	SeasonID  string `json:"season_id"`
	MovieID   string `json:"movie_id"`
}

// Generate pages through the listing for the next 72 hours and returns one
// synthesized guide document.
func (r *Rakuten) Generate(ctx context.Context) (*xmltv.Document, error) {
	log.Print("rakuten: guide generation enabled, starting")
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	// The provider's listing granularity is whole days.
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.Add(guideWindow)

	doc := &xmltv.Document{
		Date:              xmltv.NewTime(now),
		GeneratorInfoName: "plex-iptv-proxy",
	}

	page := 1
	for {
		resp, err := r.fetchPage(ctx, start, end, page)
		if err != nil {
			return nil, err
		}
		for _, ch := range resp.Data {
			r.appendChannel(doc, ch)
		}
		if page >= resp.Meta.Pagination.TotalPages || resp.Meta.Pagination.TotalPages == 0 {
			break
		}
		page++
	}

	log.Printf("rakuten: guide generation finished, channels=%d programmes=%d", len(doc.Channels), len(doc.Programmes))
	return doc, nil
}

func (r *Rakuten) fetchPage(ctx context.Context, start, end time.Time, page int) (*rakutenResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	base := r.BaseURL
	if base == "" {
		base = DefaultRakutenBaseURL
	}
	params := url.Values{
		"device_identifier":           {"web"},
		"device_stream_audio_quality": {"2.0"},
		"device_stream_hdr_type":      {"NONE"},
		"device_stream_video_quality": {"FHD"},
		"epg_duration_minutes":        {"360"},
		"per_page":                    {"250"},
		"page":                        {strconv.Itoa(page)},
		"epg_starts_at":               {start.Format(time.RFC3339)},
		"epg_starts_at_timestamp":     {strconv.FormatInt(start.UnixMilli(), 10)},
		"epg_ends_at":                 {end.Format(time.RFC3339)},
		"epg_ends_at_timestamp":       {strconv.FormatInt(end.UnixMilli(), 10)},
		"classification_id":           {strconv.Itoa(r.Config.ClassificationID)},
		"locale":                      {r.Config.Locale},
		"market_code":                 {r.Config.MarketCode},
	}
	client := r.Client
	if client == nil {
		client = httpclient.Default()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page %d: status %d", page, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	var parsed rakutenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page, err)
	}
	return &parsed, nil
}

func (r *Rakuten) appendChannel(doc *xmltv.Document, ch rakutenChannel) {
	lang := "en"
	if ch.Labels != nil && len(ch.Labels.Languages) > 0 {
		lang = iso639_1(ch.Labels.Languages[0].ID)
	}

	channel := xmltv.Channel{
		ID:           ch.ID,
		DisplayNames: []xmltv.Text{{Lang: lang, Value: escapeHTML(ch.Title)}},
	}
	if ch.Images != nil {
		icon := ch.Images.ArtworkNegative
		if icon == "" {
			icon = ch.Images.Artwork
		}
		if icon != "" {
			channel.Icons = []xmltv.Icon{{Src: icon}}
		}
	}
	doc.Channels = append(doc.Channels, channel)

	var category string
	if ch.Labels != nil && len(ch.Labels.Tags) > 0 {
		names := make([]string, 0, len(ch.Labels.Tags))
		for _, tag := range ch.Labels.Tags {
			names = append(names, tag.Name)
		}
		category = escapeHTML(strings.Join(names, ", "))
	}

	for _, prog := range ch.LivePrograms {
		start, err := time.Parse(time.RFC3339, prog.StartsAt)
		if err != nil {
			continue
		}
		stop, err := time.Parse(time.RFC3339, prog.EndsAt)
		if err != nil {
			continue
		}
		p := xmltv.Programme{
			Channel:  ch.ID,
			Start:    xmltv.NewTime(start),
			Stop:     xmltv.NewTime(stop),
			Titles:   []xmltv.Text{{Lang: lang, Value: escapeHTML(prog.Title)}},
			Descs:    []xmltv.Text{{Lang: lang, Value: escapeHTML(prog.Description)}},
			Language: &xmltv.Text{Lang: lang, Value: lang},
		}
		if prog.Subtitle != "" {
			p.SubTitles = []xmltv.Text{{Lang: lang, Value: escapeHTML(prog.Subtitle)}}
		}
		if category != "" {
			p.Categories = []xmltv.Text{{Lang: lang, Value: category}}
		}
		if prog.Images.Snapshot != "" {
			p.Images = []xmltv.Image{{Type: "still", Value: prog.Images.Snapshot}}
		}
		if prog.EpisodeID != "" {
			p.EpisodeNums = []xmltv.EpisodeNum{{System: "onscreen", Value: escapeHTML(prog.EpisodeID)}}
		}
		doc.Programmes = append(doc.Programmes, p)
	}
}
