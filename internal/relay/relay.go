// Package relay pipes provider streams to clients through ffmpeg, remuxing
// to MPEG-TS with video passthrough and policy-driven audio transcoding.
package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/probe"
)

// AudioCopy passes the source audio through untouched.
const AudioCopy = "copy"

// DecideAudio returns the output audio codec for a stream. Video is always
// copied; audio is re-encoded to the configured target only when a cached
// probe shows an audio stream hitting one of the transcode triggers. An
// unknown stream (no cached probe) is passed through so a cache miss never
// blocks playback.
func DecideAudio(cfg config.AudioTranscode, cached *probe.Result) string {
	if !cfg.Enabled {
		return AudioCopy
	}
	if cached == nil || !cached.OK || cached.Metadata == nil {
		log.Print("relay: no probe result cached for stream, passing audio through")
		return AudioCopy
	}
	for _, s := range cached.Metadata.AudioStreams() {
		for _, trig := range cfg.Triggers {
			if trig.Matches(s.CodecName, s.Profile) {
				log.Printf("relay: audio %s/%s triggers transcode to %s", s.CodecName, s.Profile, cfg.Target)
				return cfg.Target
			}
		}
	}
	return AudioCopy
}

// Relay spawns ffmpeg processes that remux one provider URL each.
type Relay struct {
	UserAgent  string
	Transcode  config.AudioTranscode
	FFmpegPath string // "" = "ffmpeg" from PATH
}

func (r *Relay) path() string {
	if r.FFmpegPath != "" {
		return r.FFmpegPath
	}
	return "ffmpeg"
}

// args builds the ffmpeg invocation: realtime-paced input read with a large
// reorder buffer, then a zero-latency MPEG-TS remux on stdout.
func (r *Relay) args(url, audioCodec string) []string {
	return []string{
		"-user_agent", r.UserAgent,
		"-re",
		"-rtbufsize", "128M",
		"-thread_queue_size", "4096",
		"-i", url,
		"-tune", "zerolatency",
		"-preset", "superfast",
		"-c:v", "copy",
		"-c:a", audioCodec,
		"-f", "mpegts",
		"pipe:1",
	}
}

// Stream relays url into w until the source ends or ctx is cancelled. The
// ffmpeg process is killed on every exit path. cached is the catalog's probe
// result for this URL, nil when the catalog has never seen it.
func (r *Relay) Stream(ctx context.Context, w io.Writer, url string, cached *probe.Result) error {
	audioCodec := DecideAudio(r.Transcode, cached)
	args := r.args(url, audioCodec)
	log.Printf("relay: streaming %s audio=%s", url, audioCodec)

	cmd := exec.CommandContext(ctx, r.path(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	go logStderr(stderr)

	if _, err := copyFlush(w, stdout); err != nil {
		// The common case: the client hung up mid-stream.
		log.Printf("relay: stream %s closed: %v", url, err)
		return nil
	}
	log.Printf("relay: stream %s ended", url)
	return nil
}

// logStderr forwards ffmpeg's progress and error lines to the log.
func logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		log.Printf("relay: ffmpeg: %s", sc.Text())
	}
}

// copyFlush copies src to dst, flushing after every chunk when dst is an
// http.Flusher so TS packets reach the client without response buffering.
func copyFlush(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}
