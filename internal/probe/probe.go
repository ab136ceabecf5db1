// Package probe inspects candidate streams with ffprobe and turns a set of
// playlists into probed, numbered results.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"

	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/playlist"
)

// ErrNoStreams is the machine-readable reason recorded when ffprobe returns
// no elementary streams for a URL.
const ErrNoStreams = "FFMPEG_STREAMS_NOT_FOUND"

// UnassignedChannel is the sentinel channel number for tracks without a
// usable tvg-chno hint.
const UnassignedChannel = -1

// Result is the outcome of probing one track. Either Metadata (OK) or Error
// (not OK) is populated, never both. ChannelNumber is rewritten once during
// catalog reconciliation and immutable afterwards.
type Result struct {
	OK            bool           `json:"ok"`
	ChannelNumber int            `json:"channelNumber"`
	ChannelName   string         `json:"channelName"`
	Track         playlist.Track `json:"track"`
	Metadata      *Metadata      `json:"metadata,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Metadata is the structured ffprobe description of a probed stream.
type Metadata struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one elementary stream reported by ffprobe.
type Stream struct {
	Index       int    `json:"index"`
	CodecName   string `json:"codec_name,omitempty"`
	CodecType   string `json:"codec_type,omitempty"`
	Profile     string `json:"profile,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	CodedWidth  int    `json:"coded_width,omitempty"`
	CodedHeight int    `json:"coded_height,omitempty"`
	PixFmt      string `json:"pix_fmt,omitempty"`
	Level       int    `json:"level,omitempty"`
	SampleRate  string `json:"sample_rate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	BitRate     string `json:"bit_rate,omitempty"`
}

// Format is ffprobe's container-level description.
type Format struct {
	FormatName     string `json:"format_name,omitempty"`
	FormatLongName string `json:"format_long_name,omitempty"`
	NbStreams      int    `json:"nb_streams,omitempty"`
	Duration       string `json:"duration,omitempty"`
	BitRate        string `json:"bit_rate,omitempty"`
}

// VideoStreams returns the video elementary streams.
func (m *Metadata) VideoStreams() []Stream {
	return m.streamsOfType("video")
}

// AudioStreams returns the audio elementary streams.
func (m *Metadata) AudioStreams() []Stream {
	return m.streamsOfType("audio")
}

func (m *Metadata) streamsOfType(kind string) []Stream {
	var out []Stream
	for _, s := range m.Streams {
		if s.CodecType == kind {
			out = append(out, s)
		}
	}
	return out
}

// HD reports whether any video stream is at least 1920 wide (width or
// coded width).
func (m *Metadata) HD() bool {
	for _, s := range m.VideoStreams() {
		if s.Width >= 1920 || s.CodedWidth >= 1920 {
			return true
		}
	}
	return false
}

// Prober runs ffprobe against tracks.
type Prober struct {
	Timeout     time.Duration
	UserAgent   string
	HTTPReferer string
	// FFProbePath overrides PATH lookup; tests point it at a fake binary.
	FFProbePath string
}

// New returns a Prober configured from cfg.
func New(cfg config.Probe) *Prober {
	return &Prober{
		Timeout:     cfg.Timeout(),
		UserAgent:   cfg.UserAgent,
		HTTPReferer: cfg.HTTPReferer,
	}
}

func (p *Prober) args(track playlist.Track) []string {
	args := []string{
		"-of", "json",
		"-v", "error",
		"-hide_banner",
		"-show_streams",
		"-show_format",
	}
	if p.Timeout > 0 {
		// ffprobe's -timeout is in microseconds.
		args = append(args, "-timeout", strconv.FormatInt(p.Timeout.Microseconds(), 10))
	}
	if p.HTTPReferer != "" {
		args = append(args, "-headers", "Referer: "+p.HTTPReferer)
	}
	if p.UserAgent != "" {
		args = append(args, "-user_agent", p.UserAgent)
	}
	return append(args, track.URL)
}

// Probe runs ffprobe for one track. Failures (timeout, non-zero exit,
// invalid output, zero streams) come back as failed Results, never as
// errors; a probe must not abort its batch.
func (p *Prober) Probe(ctx context.Context, track playlist.Track) Result {
	res := Result{
		ChannelNumber: track.ChannelNumber(),
		ChannelName:   track.DisplayTitle(),
		Track:         track,
	}
	path := p.FFProbePath
	if path == "" {
		found, err := exec.LookPath("ffprobe")
		if err != nil {
			res.Error = fmt.Sprintf("ffprobe not found: %v", err)
			return res
		}
		path = found
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("probe: testing %s", track.URL)
	out, err := exec.CommandContext(ctx, path, p.args(track)...).Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.Error = fmt.Sprintf("ffprobe timed out after %s", timeout)
		} else {
			res.Error = err.Error()
		}
		log.Printf("probe: testing %s failed: %s", track.URL, res.Error)
		return res
	}

	meta, err := parseMetadata(out)
	if err != nil {
		res.Error = err.Error()
		log.Printf("probe: testing %s failed: %s", track.URL, res.Error)
		return res
	}
	if len(meta.Streams) == 0 {
		res.Error = ErrNoStreams
		log.Printf("probe: testing %s failed: no streams", track.URL)
		return res
	}
	res.OK = true
	res.Metadata = meta
	log.Printf("probe: testing %s success", track.URL)
	return res
}

func parseMetadata(out []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	return &meta, nil
}
