// Package config loads the tuner's single JSON configuration document.
// The document is read once at startup and injected into every component;
// nothing mutates it afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultPort         = 26457
	DefaultTunerCount   = 4
	DefaultProbeTimeout = 60 * time.Second
	DefaultUserAgent    = "FMLE/3.0 (compatible; FMSc/1.0)"
	DefaultDataDir      = "data"
)

// Config is data/config.json. Playlist and guide source lists are required;
// everything else has a default.
type Config struct {
	IPTVPlaylists  []string       `json:"iptvPlaylists"`
	EPGSources     []string       `json:"epgSources"`
	RakutenEPG     RakutenEPG     `json:"rakutenEpg"`
	Port           int            `json:"port"`
	FriendlyName   string         `json:"friendlyName"`
	TunerCount     int            `json:"tunerCount"`
	Probe          Probe          `json:"probe"`
	AudioTranscode AudioTranscode `json:"audioTranscode"`
	DataDir        string         `json:"dataDir"`
}

// RakutenEPG configures the Rakuten live-channel guide adapter.
type RakutenEPG struct {
	Enabled          bool   `json:"enabled"`
	ClassificationID int    `json:"classification_id"`
	Locale           string `json:"locale"`
	MarketCode       string `json:"market_code"`
}

// Probe configures the ffprobe invocations used to build the catalog.
type Probe struct {
	TimeoutMs   int    `json:"timeoutMs"`
	UserAgent   string `json:"userAgent"`
	HTTPReferer string `json:"httpReferer"`
}

// Timeout returns the per-probe timeout with the default applied.
func (p Probe) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return DefaultProbeTimeout
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// AudioTranscode maps (codec, profile) pairs that must be re-encoded during
// streaming instead of passed through.
type AudioTranscode struct {
	Enabled  bool      `json:"enabled"`
	Target   string    `json:"target"` // output audio codec, e.g. "aac"
	Triggers []Trigger `json:"triggers"`
}

// Trigger is one (codec, profile) pair that forces the audio transcode.
// An empty Profile matches any profile for that codec.
type Trigger struct {
	Codec   string `json:"codec"`
	Profile string `json:"profile"`
}

// Matches reports whether the given stream codec/profile hits this trigger.
func (t Trigger) Matches(codec, profile string) bool {
	if !strings.EqualFold(strings.TrimSpace(t.Codec), strings.TrimSpace(codec)) {
		return false
	}
	if strings.TrimSpace(t.Profile) == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(t.Profile), strings.TrimSpace(profile))
}

// Load reads and validates the config document at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("missing config path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(f *os.File) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.IPTVPlaylists) == 0 {
		return fmt.Errorf("iptvPlaylists must not be empty")
	}
	for i, u := range c.IPTVPlaylists {
		if err := checkURL(u); err != nil {
			return fmt.Errorf("iptvPlaylists[%d]: %w", i, err)
		}
	}
	if len(c.EPGSources) == 0 {
		return fmt.Errorf("epgSources must not be empty")
	}
	for i, u := range c.EPGSources {
		if err := checkURL(u); err != nil {
			return fmt.Errorf("epgSources[%d]: %w", i, err)
		}
	}
	if c.RakutenEPG.Enabled {
		if c.RakutenEPG.ClassificationID <= 0 {
			return fmt.Errorf("rakutenEpg.classification_id required when enabled")
		}
		if strings.TrimSpace(c.RakutenEPG.Locale) == "" {
			return fmt.Errorf("rakutenEpg.locale required when enabled")
		}
		if strings.TrimSpace(c.RakutenEPG.MarketCode) == "" {
			return fmt.Errorf("rakutenEpg.market_code required when enabled")
		}
	}
	if c.AudioTranscode.Enabled {
		if strings.TrimSpace(c.AudioTranscode.Target) == "" {
			return fmt.Errorf("audioTranscode.target required when enabled")
		}
		if len(c.AudioTranscode.Triggers) == 0 {
			return fmt.Errorf("audioTranscode.triggers must not be empty when enabled")
		}
		for i, tr := range c.AudioTranscode.Triggers {
			if strings.TrimSpace(tr.Codec) == "" {
				return fmt.Errorf("audioTranscode.triggers[%d].codec required", i)
			}
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.TunerCount <= 0 {
		c.TunerCount = DefaultTunerCount
	}
	if strings.TrimSpace(c.FriendlyName) == "" {
		c.FriendlyName = "Plex IPTV Proxy"
	}
	if strings.TrimSpace(c.Probe.UserAgent) == "" {
		c.Probe.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if c.AudioTranscode.Enabled && strings.TrimSpace(c.AudioTranscode.Target) == "" {
		c.AudioTranscode.Target = "aac"
	}
}
