// Package xmltv models XMLTV program-guide documents. Matching and merging
// need whole documents, so this package is document-shaped: Parse returns a
// Document, Write emits one.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Document is one parsed guide feed: channel definitions plus scheduled
// programmes. Read-only once loaded; matchers deep-copy before mutating.
type Document struct {
	XMLName           xml.Name    `xml:"tv"`
	Date              Time        `xml:"date,attr,omitempty"`
	GeneratedTS       string      `xml:"generated-ts,attr,omitempty"`
	GeneratorInfoName string      `xml:"generator-info-name,attr,omitempty"`
	Channels          []Channel   `xml:"channel"`
	Programmes        []Programme `xml:"programme"`
}

// EffectiveDate returns the document's generation time. A missing date attr
// is backfilled from the generated-ts attribute some feeds carry instead;
// undated documents report the epoch.
func (d *Document) EffectiveDate() time.Time {
	if !d.Date.IsZero() {
		return d.Date.Time
	}
	if ts := strings.TrimSpace(d.GeneratedTS); ts != "" {
		if ms, err := strconv.ParseFloat(ts, 64); err == nil {
			return time.UnixMilli(int64(ms))
		}
	}
	return time.Unix(0, 0)
}

// Channel is one guide channel definition.
type Channel struct {
	ID           string `xml:"id,attr"`
	DisplayNames []Text `xml:"display-name"`
	Icons        []Icon `xml:"icon"`
}

// DisplayName returns the first display-name value, or "".
func (c Channel) DisplayName() string {
	if len(c.DisplayNames) == 0 {
		return ""
	}
	return c.DisplayNames[0].Value
}

// Clone returns a deep copy.
func (c Channel) Clone() Channel {
	out := c
	out.DisplayNames = append([]Text(nil), c.DisplayNames...)
	out.Icons = append([]Icon(nil), c.Icons...)
	return out
}

// Programme is one scheduled entry on a channel.
type Programme struct {
	Channel     string       `xml:"channel,attr"`
	Start       Time         `xml:"start,attr"`
	Stop        Time         `xml:"stop,attr,omitempty"`
	Titles      []Text       `xml:"title"`
	SubTitles   []Text       `xml:"sub-title"`
	Descs       []Text       `xml:"desc"`
	Categories  []Text       `xml:"category"`
	Language    *Text        `xml:"language"`
	Icons       []Icon       `xml:"icon"`
	Images      []Image      `xml:"image"`
	EpisodeNums []EpisodeNum `xml:"episode-num"`
}

// Clone returns a deep copy.
func (p Programme) Clone() Programme {
	out := p
	out.Titles = append([]Text(nil), p.Titles...)
	out.SubTitles = append([]Text(nil), p.SubTitles...)
	out.Descs = append([]Text(nil), p.Descs...)
	out.Categories = append([]Text(nil), p.Categories...)
	out.Icons = append([]Icon(nil), p.Icons...)
	out.Images = append([]Image(nil), p.Images...)
	out.EpisodeNums = append([]EpisodeNum(nil), p.EpisodeNums...)
	if p.Language != nil {
		lang := *p.Language
		out.Language = &lang
	}
	return out
}

// Text is a language-tagged text value.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Icon is a channel or programme icon reference.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Image is a programme image with an optional type tag (poster, still, ...).
type Image struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// EpisodeNum carries an episode marker in a named numbering system.
type EpisodeNum struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Time wraps time.Time with XMLTV attribute formats.
type Time struct {
	time.Time
}

// xmltvTimeLayouts covers the formats seen in the wild, longest first.
var xmltvTimeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504",
	"20060102",
	time.RFC3339,
}

func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	for _, layout := range xmltvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized XMLTV time %q", s)
}

func (t *Time) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := parseXMLTVTime(attr.Value)
	if err != nil {
		// Tolerate malformed times: a bad attribute degrades one value,
		// not the whole feed.
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if t.IsZero() {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: t.UTC().Format("20060102150405 -0700")}, nil
}

// NewTime wraps t for XMLTV serialization.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// Parse decodes one XMLTV document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// ParseBytes decodes one XMLTV document from memory.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(strings.NewReader(string(data)))
}

// Write serializes the document with an XML declaration. encoding/xml
// escapes all text and attribute values, so titles that were HTML-escaped at
// synthesis time never render raw markup.
func Write(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xmltv: %w", err)
	}
	enc.Flush()
	_, err := io.WriteString(w, "\n")
	return err
}
