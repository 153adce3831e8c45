// Package encoder shells out to ffmpeg to produce poster frames and
// segmented HLS renditions. It performs no retries: a failed invocation
// is reported with its stage and stderr and aborts the job.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lumenweb/sitemedia/internal/model"
)

// Config holds process-wide encoder settings, constructed once at startup
// and injected rather than read from globals.
type Config struct {
	// FFmpegBin is the ffmpeg executable. Empty means look up "ffmpeg"
	// on PATH.
	FFmpegBin string
}

// Encoder wraps the external media engine.
type Encoder struct {
	bin string
}

// New constructs an Encoder from Config.
func New(cfg Config) *Encoder {
	bin := cfg.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Encoder{bin: bin}
}

// PosterFilename is the still image published alongside the renditions.
const PosterFilename = "poster.jpg"

// ExtractPoster grabs a single frame one second into the source and
// writes it as a JPEG in outDir, returning the written path.
func (e *Encoder) ExtractPoster(ctx context.Context, sourcePath, outDir string) (string, error) {
	posterPath := filepath.Join(outDir, PosterFilename)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", "1",
		"-i", sourcePath,
		"-frames:v", "1",
		"-q:v", "2",
		posterPath,
	}
	if err := e.run(ctx, args); err != nil {
		return "", fmt.Errorf("extract poster: %w", err)
	}
	return posterPath, nil
}

// EncodeRendition produces one rendition's variant playlist and numbered
// segment files in outDir, named by the rendition's quality label.
func (e *Encoder) EncodeRendition(ctx context.Context, sourcePath, outDir string, r model.Rendition) error {
	if err := e.run(ctx, renditionArgs(sourcePath, outDir, r)); err != nil {
		return fmt.Errorf("encode rendition %s: %w", r.Name, err)
	}
	return nil
}

// renditionArgs builds the fixed encoding policy: downscale-only
// aspect-preserving scaling, constant GOP sized for the 6 second segment
// target, independently decodable segments, optional audio track.
func renditionArgs(sourcePath, outDir string, r model.Rendition) []string {
	scale := fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", r.Width, r.Height)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", sourcePath,
		// The trailing ? keeps ffmpeg from failing on silent sources.
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", scale,
		"-c:v", "libx264", "-preset", "veryfast", "-profile:v", "main",
		"-b:v", r.VideoBitrate,
		"-g", "180", "-keyint_min", "180", "-sc_threshold", "0",
		"-c:a", "aac", "-b:a", r.AudioBitrate, "-ac", "2",
		"-f", "hls",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, r.Name+"_%03d.ts"),
		filepath.Join(outDir, r.Name+".m3u8"),
	}
}

func (e *Encoder) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", e.bin, err, msg)
		}
		return fmt.Errorf("%s: %w", e.bin, err)
	}
	return nil
}

// lastLine returns the final non-empty stderr line, which is where
// ffmpeg puts the actionable message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
