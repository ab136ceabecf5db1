package guide

import (
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/plexiptv/tuner/internal/probe"
	"github.com/plexiptv/tuner/internal/xmltv"
)

const (
	// staleBound discards a candidate whose newest programme started more
	// than this long ago: the feed no longer covers the channel.
	staleBound = 3 * time.Hour
	// futureBound discards a candidate whose earliest programme starts more
	// than this far ahead: there is no usable near-term schedule yet.
	futureBound = 6 * time.Hour
	// syntheticDuration is the length of the filler programme emitted for
	// channels with no guide match.
	syntheticDuration = 72 * time.Hour
)

// Stats summarizes one guide generation.
type Stats struct {
	Matched   int
	Synthetic int
	Skipped   int
}

// match is an elaborated candidate: a guide channel that passed the
// freshness and coverage bounds.
type match struct {
	channel    xmltv.Channel
	programmes []xmltv.Programme
	docDate    time.Time
	first      time.Time
	last       time.Time
}

// Generate reconciles the catalog's successful probe results against the
// loaded guide documents (already sorted freshest-first) and returns the
// synthesized program guide. Every result with an assigned channel number
// appears exactly once: matched when a usable guide channel exists,
// synthetic otherwise.
func Generate(results []probe.Result, guides []*xmltv.Document, now time.Time) (*xmltv.Document, Stats) {
	log.Print("guide: generating program guide")
	out := &xmltv.Document{
		Date:              xmltv.NewTime(now),
		GeneratorInfoName: "plex-iptv-proxy",
	}
	var stats Stats

	for _, result := range results {
		if !result.OK {
			continue
		}
		matches := matchTrack(guides, result, now)
		title := result.Track.Title
		if title == "" {
			title = "UNKNOWN CHANNEL"
		}

		if len(matches) > 0 {
			best := matches[0]
			mergeMatch(out, result, best)
			stats.Matched++
			log.Printf("guide: [%d] matched channel added: %s %s", result.ChannelNumber, result.Track.Group, title)
			continue
		}

		if result.ChannelNumber == probe.UnassignedChannel {
			stats.Skipped++
			continue
		}
		appendSynthetic(out, result, title, now)
		stats.Synthetic++
		log.Printf("guide: [%d] synthetic channel added: %s %s", result.ChannelNumber, result.Track.Group, title)
	}

	log.Printf("guide: generated with %d channels (%d matched, %d synthetic, %d skipped)",
		len(out.Channels), stats.Matched, stats.Synthetic, stats.Skipped)
	return out, stats
}

// matchTrack collects elaborated matches for one track across all guide
// documents and sorts them by programme count descending.
func matchTrack(guides []*xmltv.Document, result probe.Result, now time.Time) []match {
	var matches []match
	track := result.Track
	for _, doc := range guides {
		var found *xmltv.Channel
		if track.TvgID != "" {
			found = findChannel(doc, track.TvgID)
			if m := elaborate(doc, found, now); m != nil {
				matches = append(matches, *m)
			}
		}
		// Title fallback only when the tvg-id produced no raw channel hit;
		// a hit that merely failed elaboration consumes this document.
		if found == nil && track.Title != "" {
			found = findChannel(doc, track.Title)
			if m := elaborate(doc, found, now); m != nil {
				matches = append(matches, *m)
			}
		}
	}
	// Most programme coverage first; document freshness breaks ties by
	// virtue of the input ordering.
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i].programmes) > len(matches[j].programmes)
	})
	return matches
}

// findChannel matches key against a channel's id or first display name.
func findChannel(doc *xmltv.Document, key string) *xmltv.Channel {
	for i := range doc.Channels {
		ch := &doc.Channels[i]
		if ch.ID == key || ch.DisplayName() == key {
			return ch
		}
	}
	return nil
}

// elaborate validates a raw channel match: it must carry at least one
// programme, its newest programme must not be older than the stale bound
// and its earliest must not start beyond the future bound. Failing either
// bound discards the match entirely.
func elaborate(doc *xmltv.Document, ch *xmltv.Channel, now time.Time) *match {
	if ch == nil {
		return nil
	}
	var programmes []xmltv.Programme
	var first, last time.Time
	for _, p := range doc.Programmes {
		if p.Channel != ch.ID {
			continue
		}
		programmes = append(programmes, p)
		if first.IsZero() || p.Start.Before(first) {
			first = p.Start.Time
		}
		if last.IsZero() || p.Start.After(last) {
			last = p.Start.Time
		}
	}
	if len(programmes) == 0 {
		return nil
	}
	if last.Before(now.Add(-staleBound)) {
		return nil
	}
	if first.After(now.Add(futureBound)) {
		return nil
	}
	return &match{
		channel:    *ch,
		programmes: programmes,
		docDate:    doc.EffectiveDate(),
		first:      first,
		last:       last,
	}
}

// mergeMatch deep-copies the winning channel and programmes into the output
// guide, injects the track's logo hint when the channel has no icon, and
// rewrites identifiers to the catalog channel number.
func mergeMatch(out *xmltv.Document, result probe.Result, best match) {
	channel := best.channel.Clone()
	programmes := make([]xmltv.Programme, len(best.programmes))
	for i, p := range best.programmes {
		programmes[i] = p.Clone()
	}

	if result.Track.Logo != "" && len(channel.Icons) == 0 {
		channel.Icons = []xmltv.Icon{{Src: result.Track.Logo}}
	}

	if result.ChannelNumber != probe.UnassignedChannel {
		id := strconv.Itoa(result.ChannelNumber)
		channel.ID = id
		for i := range programmes {
			programmes[i].Channel = id
		}
	}

	out.Channels = append(out.Channels, channel)
	out.Programmes = append(out.Programmes, programmes...)
}

// appendSynthetic emits a placeholder channel with one long filler
// programme so the client always sees guide coverage.
func appendSynthetic(out *xmltv.Document, result probe.Result, title string, now time.Time) {
	id := strconv.Itoa(result.ChannelNumber)
	out.Channels = append(out.Channels, xmltv.Channel{
		ID:           id,
		DisplayNames: []xmltv.Text{{Value: escapeHTML(title)}},
	})
	programme := xmltv.Programme{
		Channel: id,
		Start:   xmltv.NewTime(now),
		Stop:    xmltv.NewTime(now.Add(syntheticDuration)),
		Titles:  []xmltv.Text{{Value: escapeHTML(title)}},
	}
	if result.Track.Genre != "" {
		programme.Categories = []xmltv.Text{{Value: escapeHTML(result.Track.Genre)}}
	}
	if result.Track.Image != "" {
		programme.Images = []xmltv.Image{{Type: "poster", Value: result.Track.Image}}
	}
	out.Programmes = append(out.Programmes, programme)
}
