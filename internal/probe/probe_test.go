package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plexiptv/tuner/internal/playlist"
)

// fakeFFProbe writes an executable script standing in for ffprobe.
func fakeFFProbe(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	return path
}

const okOutput = `{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":1920,"height":1080},{"index":1,"codec_name":"ac3","codec_type":"audio","profile":"Dolby Digital"}],"format":{"format_name":"mpegts"}}`

func TestProbe_success(t *testing.T) {
	p := &Prober{
		FFProbePath: fakeFFProbe(t, "echo '"+okOutput+"'"),
		Timeout:     5 * time.Second,
	}
	res := p.Probe(context.Background(), playlist.Track{URL: "http://host/ch.m3u8", Title: "Ch", TvgChno: "3"})
	if !res.OK {
		t.Fatalf("probe failed: %s", res.Error)
	}
	if res.ChannelNumber != 3 || res.ChannelName != "Ch" {
		t.Errorf("result: %+v", res)
	}
	if len(res.Metadata.Streams) != 2 {
		t.Fatalf("streams: %+v", res.Metadata.Streams)
	}
	audio := res.Metadata.AudioStreams()
	if len(audio) != 1 || audio[0].CodecName != "ac3" || audio[0].Profile != "Dolby Digital" {
		t.Errorf("audio streams: %+v", audio)
	}
	if !res.Metadata.HD() {
		t.Error("1920-wide video should report HD")
	}
}

func TestProbe_noStreams(t *testing.T) {
	p := &Prober{
		FFProbePath: fakeFFProbe(t, `echo '{"streams":[],"format":{}}'`),
		Timeout:     5 * time.Second,
	}
	res := p.Probe(context.Background(), playlist.Track{URL: "http://host/empty"})
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Error != ErrNoStreams {
		t.Errorf("error: %q", res.Error)
	}
	if res.ChannelName != "untitled channel" {
		t.Errorf("placeholder name: %q", res.ChannelName)
	}
	if res.ChannelNumber != UnassignedChannel {
		t.Errorf("channel number: %d", res.ChannelNumber)
	}
}

func TestProbe_invalidOutput(t *testing.T) {
	p := &Prober{
		FFProbePath: fakeFFProbe(t, "echo 'not json'"),
		Timeout:     5 * time.Second,
	}
	res := p.Probe(context.Background(), playlist.Track{URL: "http://host/bad"})
	if res.OK || !strings.Contains(res.Error, "invalid ffprobe output") {
		t.Errorf("result: %+v", res)
	}
}

func TestProbe_nonZeroExit(t *testing.T) {
	p := &Prober{
		FFProbePath: fakeFFProbe(t, "exit 1"),
		Timeout:     5 * time.Second,
	}
	res := p.Probe(context.Background(), playlist.Track{URL: "http://host/broken"})
	if res.OK || res.Error == "" {
		t.Errorf("result: %+v", res)
	}
}

func TestProbe_timeoutDoesNotBlockSiblings(t *testing.T) {
	hang := &Prober{
		FFProbePath: fakeFFProbe(t, "sleep 30"),
		Timeout:     150 * time.Millisecond,
	}
	fast := &Prober{
		FFProbePath: fakeFFProbe(t, "echo '"+okOutput+"'"),
		Timeout:     5 * time.Second,
	}

	var wg sync.WaitGroup
	var hungRes, fastRes Result
	wg.Add(2)
	go func() {
		defer wg.Done()
		hungRes = hang.Probe(context.Background(), playlist.Track{URL: "http://host/hang"})
	}()
	go func() {
		defer wg.Done()
		fastRes = fast.Probe(context.Background(), playlist.Track{URL: "http://host/fast"})
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("probes did not finish; a hung probe is blocking")
	}

	if hungRes.OK || !strings.Contains(hungRes.Error, "timed out") {
		t.Errorf("hung probe: %+v", hungRes)
	}
	if !fastRes.OK {
		t.Errorf("fast probe: %+v", fastRes)
	}
}

func TestArgs_shape(t *testing.T) {
	p := &Prober{
		Timeout:     60 * time.Second,
		UserAgent:   "FMLE/3.0 (compatible; FMSc/1.0)",
		HTTPReferer: "http://referer.example",
	}
	args := p.args(playlist.Track{URL: "http://host/ch"})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-of json",
		"-show_streams",
		"-show_format",
		"-timeout 60000000",
		"-headers Referer: http://referer.example",
		"-user_agent FMLE/3.0 (compatible; FMSc/1.0)",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "http://host/ch" {
		t.Errorf("URL must be last arg: %v", args)
	}
}
