package relay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/probe"
)

func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func resultWithAudio(codec, profile string) *probe.Result {
	return &probe.Result{
		OK: true,
		Metadata: &probe.Metadata{
			Streams: []probe.Stream{
				{CodecType: "video", CodecName: "h264"},
				{CodecType: "audio", CodecName: codec, Profile: profile},
			},
		},
	}
}

func TestDecideAudio(t *testing.T) {
	policy := config.AudioTranscode{
		Enabled: true,
		Target:  "aac",
		Triggers: []config.Trigger{
			{Codec: "eac3"},
			{Codec: "aac", Profile: "HE-AAC"},
		},
	}

	cases := []struct {
		name   string
		cfg    config.AudioTranscode
		cached *probe.Result
		want   string
	}{
		{"disabled", config.AudioTranscode{}, resultWithAudio("eac3", ""), AudioCopy},
		{"cache miss", policy, nil, AudioCopy},
		{"failed probe", policy, &probe.Result{OK: false}, AudioCopy},
		{"codec trigger any profile", policy, resultWithAudio("eac3", "Dolby Digital Plus"), "aac"},
		{"codec and profile trigger", policy, resultWithAudio("aac", "HE-AAC"), "aac"},
		{"profile mismatch", policy, resultWithAudio("aac", "LC"), AudioCopy},
		{"untriggered codec", policy, resultWithAudio("mp2", ""), AudioCopy},
		{"case insensitive", policy, resultWithAudio("EAC3", ""), "aac"},
	}
	for _, tc := range cases {
		if got := DecideAudio(tc.cfg, tc.cached); got != tc.want {
			t.Errorf("%s: DecideAudio = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestArgsShape(t *testing.T) {
	r := &Relay{UserAgent: "FMLE/3.0 (compatible; FMSc/1.0)"}
	got := strings.Join(r.args("http://example.com/live", "copy"), " ")
	want := "-user_agent FMLE/3.0 (compatible; FMSc/1.0) -re -rtbufsize 128M -thread_queue_size 4096" +
		" -i http://example.com/live -tune zerolatency -preset superfast -c:v copy -c:a copy -f mpegts pipe:1"
	if got != want {
		t.Fatalf("args = %q\nwant   %q", got, want)
	}
}

func TestStreamCopiesOutput(t *testing.T) {
	ff := fakeFFmpeg(t, `printf 'TSDATA'
echo 'frame=1' >&2`)
	r := &Relay{UserAgent: "ua", FFmpegPath: ff}

	var buf bytes.Buffer
	if err := r.Stream(context.Background(), &buf, "http://example.com/live", nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "TSDATA" {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestStreamStartError(t *testing.T) {
	r := &Relay{UserAgent: "ua", FFmpegPath: filepath.Join(t.TempDir(), "missing")}
	var buf bytes.Buffer
	if err := r.Stream(context.Background(), &buf, "http://example.com/live", nil); err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
}

func TestStreamStopsWhenWriterFails(t *testing.T) {
	// A writer that refuses data simulates the client hanging up; Stream must
	// return instead of blocking on the still-running process.
	ff := fakeFFmpeg(t, `i=0
while [ $i -lt 100 ]; do printf 'xxxxxxxxxxxxxxxx'; i=$((i+1)); done`)
	r := &Relay{UserAgent: "ua", FFmpegPath: ff}

	if err := r.Stream(context.Background(), failWriter{}, "http://example.com/live", nil); err != nil {
		t.Fatalf("client disconnect should not be an error: %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, os.ErrClosed
}
