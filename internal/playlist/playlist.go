// Package playlist parses M3U/M3U8 playlists into candidate stream tracks.
// It accepts plain text, gzip, bzip2 or xz compressed input.
package playlist

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

// Track is one candidate stream parsed from a playlist. Immutable once parsed.
// Known EXTINF attributes get named fields; anything unrecognized lands in
// Extra so forward-compatible tags are not lost.
type Track struct {
	URL     string            `json:"url"`
	Title   string            `json:"title,omitempty"`
	TvgID   string            `json:"tvg_id,omitempty"`
	TvgName string            `json:"tvg_name,omitempty"`
	TvgChno string            `json:"tvg_chno,omitempty"`
	Logo    string            `json:"logo,omitempty"`
	Group   string            `json:"group,omitempty"`
	Genre   string            `json:"genre,omitempty"`
	Image   string            `json:"image,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

var validChannelNumber = regexp.MustCompile(`^[0-9]+$`)

// ChannelNumber returns the hinted channel number from tvg-chno, or -1 when
// the hint is missing, non-numeric or not positive.
func (t Track) ChannelNumber() int {
	if !validChannelNumber.MatchString(t.TvgChno) {
		return -1
	}
	n, err := strconv.Atoi(t.TvgChno)
	if err != nil || n <= 0 {
		return -1
	}
	return n
}

// DisplayTitle returns the track title, or a fixed placeholder when absent.
func (t Track) DisplayTitle() string {
	if t.Title == "" {
		return "untitled channel"
	}
	return t.Title
}

var (
	extinfRegex = regexp.MustCompile(`^#EXTINF:\s*(-?\d+(?:\.\d+)?)\s*(.*)$`)
	attrRegex   = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^\s,]+))`)
)

// Parse reads a playlist and returns its tracks in order of appearance.
func Parse(r io.Reader) ([]Track, error) {
	dr, err := maybeDecompress(r)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(dr)
	sc.Buffer(nil, 1<<20)

	var tracks []Track
	var pending *Track
	var group string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			t, err := parseEXTINF(line)
			if err != nil {
				pending = nil
				continue
			}
			if t.Group == "" {
				t.Group = group
			}
			pending = t
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			if pending != nil && pending.Group == "" {
				pending.Group = group
			}
		case strings.HasPrefix(line, "#EXTIMG:"):
			if pending != nil && pending.Image == "" {
				pending.Image = strings.TrimSpace(strings.TrimPrefix(line, "#EXTIMG:"))
			}
		case strings.HasPrefix(line, "#"):
			// other directives are ignored
		default:
			if pending == nil {
				continue
			}
			pending.URL = line
			tracks = append(tracks, *pending)
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	return tracks, nil
}

func parseEXTINF(line string) (*Track, error) {
	m := extinfRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("invalid EXTINF line")
	}
	rest := m[2]
	t := &Track{}
	for _, am := range attrRegex.FindAllStringSubmatch(rest, -1) {
		key := strings.ToLower(am[1])
		val := am[2]
		if val == "" {
			val = am[3]
		}
		switch key {
		case "tvg-id":
			t.TvgID = val
		case "tvg-name":
			t.TvgName = val
		case "tvg-chno":
			t.TvgChno = val
		case "tvg-logo":
			t.Logo = val
		case "group-title":
			t.Group = val
		case "tvg-genre":
			t.Genre = val
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]string)
			}
			t.Extra[key] = val
		}
	}
	if i := findTitleStart(rest); i >= 0 {
		t.Title = strings.TrimSpace(rest[i+1:])
	}
	return t, nil
}

// findTitleStart returns the index of the comma separating attributes from
// the display title, skipping commas inside quoted attribute values.
func findTitleStart(s string) int {
	inQuotes := false
	for i, c := range s {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return i
			}
		}
	}
	return -1
}

// maybeDecompress sniffs magic bytes and wraps r accordingly.
func maybeDecompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek header: %w", err)
	}
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gz, nil
	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		return bzip2.NewReader(br), nil
	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' &&
		header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return xr, nil
	}
	return br, nil
}
