package catalog

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/plexiptv/tuner/internal/playlist"
	"github.com/plexiptv/tuner/internal/probe"
)

// ProbeConcurrency caps simultaneous ffprobe invocations.
const ProbeConcurrency = 25

// Builder turns playlist URLs into a catalog: fetch, deduplicate, probe with
// bounded concurrency, then reconcile channel numbers.
type Builder struct {
	Playlists   []string
	Prober      *probe.Prober
	Client      *http.Client
	Concurrency int // 0 = ProbeConcurrency
}

// Build runs the full pipeline and returns the new catalog. Individual
// playlist or probe failures degrade only their entries; Build errors only
// on the duplicate-channel invariant violation.
func (b *Builder) Build(ctx context.Context) (*Catalog, error) {
	tracks := b.fetchTracks(ctx)
	deduped := dedupeByURL(tracks)
	results := b.probeAll(ctx, deduped)
	ordered, err := assignChannelNumbers(results)
	if err != nil {
		return nil, err
	}
	return &Catalog{Date: time.Now(), Results: ordered}, nil
}

// fetchTracks downloads every playlist in parallel and flattens the tracks
// in playlist order. A failed playlist is logged and skipped.
func (b *Builder) fetchTracks(ctx context.Context) []playlist.Track {
	lists := make([][]playlist.Track, len(b.Playlists))
	var wg sync.WaitGroup
	for i, u := range b.Playlists {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			tracks, err := playlist.Fetch(ctx, u, b.Client)
			if err != nil {
				log.Printf("catalog: playlist %s failed: %v", u, err)
				return
			}
			lists[i] = tracks
		}(i, u)
	}
	wg.Wait()

	var flat []playlist.Track
	for _, l := range lists {
		flat = append(flat, l...)
	}
	return flat
}

// dedupeByURL keeps the first occurrence of each URL in first-seen order.
func dedupeByURL(tracks []playlist.Track) []playlist.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]playlist.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, dup := seen[t.URL]; dup {
			log.Printf("catalog: %s already added, skipping", t.URL)
			continue
		}
		seen[t.URL] = struct{}{}
		out = append(out, t)
	}
	return out
}

// probeAll probes every track with a semaphore-bounded fan-out, preserving
// input order in the result slice. A hung probe times out on its own and
// never blocks siblings.
func (b *Builder) probeAll(ctx context.Context, tracks []playlist.Track) []probe.Result {
	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = ProbeConcurrency
	}
	results := make([]probe.Result, len(tracks))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range tracks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = b.Prober.Probe(ctx, tracks[i])
		}(i)
	}
	wg.Wait()
	return results
}

// assignChannelNumbers reconciles hinted channel numbers and assigns numbers
// to the rest:
//
//  1. Among explicitly numbered results, scan from the end backward; any
//     number colliding with another entry is moved to
//     (max explicit number) + collision counter, so every forced move lands
//     strictly above all original hints and moves never collide with each
//     other.
//  2. Unnumbered results are sorted by display name (locale-aware,
//     case-insensitive) and numbered consecutively after the final maximum.
//  3. Numbered results sort ascending and the groups concatenate
//     explicit-first.
//
// A duplicate surviving all of this is a bug, not an input problem, and
// returns an error so a corrupt catalog is never persisted.
func assignChannelNumbers(results []probe.Result) ([]probe.Result, error) {
	var withNumber, without []probe.Result
	for _, r := range results {
		if r.ChannelNumber != probe.UnassignedChannel {
			withNumber = append(withNumber, r)
		} else {
			without = append(without, r)
		}
	}

	lastChannel := 0
	for _, r := range withNumber {
		if r.ChannelNumber > lastChannel {
			lastChannel = r.ChannelNumber
		}
	}

	increment := 0
	for i := len(withNumber) - 1; i >= 0; i-- {
		if !collides(withNumber, i) {
			continue
		}
		increment++
		prev := withNumber[i].ChannelNumber
		withNumber[i].ChannelNumber = lastChannel + increment
		log.Printf("catalog: moved %s from %d to %d", withNumber[i].ChannelName, prev, withNumber[i].ChannelNumber)
	}
	lastChannel += increment

	coll := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(without, func(i, j int) bool {
		return coll.CompareString(without[i].ChannelName, without[j].ChannelName) < 0
	})
	for i := range without {
		without[i].ChannelNumber = lastChannel + i + 1
	}

	sort.SliceStable(withNumber, func(i, j int) bool {
		return withNumber[i].ChannelNumber < withNumber[j].ChannelNumber
	})

	ordered := append(withNumber, without...)

	numbers := make(map[int]string, len(ordered))
	for _, r := range ordered {
		if other, dup := numbers[r.ChannelNumber]; dup {
			return nil, fmt.Errorf("duplicate channel %d: %q and %q", r.ChannelNumber, other, r.ChannelName)
		}
		numbers[r.ChannelNumber] = r.ChannelName
	}
	return ordered, nil
}

// collides reports whether entry i shares its number with any other entry.
func collides(results []probe.Result, i int) bool {
	for j := range results {
		if j != i && results[j].ChannelNumber == results[i].ChannelNumber {
			return true
		}
	}
	return false
}
