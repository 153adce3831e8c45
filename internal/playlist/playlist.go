// Package playlist renders HLS master playlists and rewrites variant
// playlists for publication. Everything here is pure text manipulation;
// no I/O.
package playlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lumenweb/sitemedia/internal/model"
	"github.com/lumenweb/sitemedia/internal/publish"
)

const header = "#EXTM3U\n#EXT-X-VERSION:3\n"

// BuildMasterRelative renders the master playlist used locally during
// generation: one stream entry per rendition, referencing the rendition's
// own playlist by relative filename.
func BuildMasterRelative(renditions []model.Rendition) string {
	var b strings.Builder
	b.WriteString(header)
	for _, r := range renditions {
		writeStreamInf(&b, r)
		b.WriteString(r.Name + ".m3u8\n")
	}
	return b.String()
}

// BuildMasterAbsolute renders the published master playlist. Stream
// attributes are identical to BuildMasterRelative; only the URI differs,
// pointing at the fully-qualified tokenized download URL of each variant.
func BuildMasterAbsolute(host, bucket, destPrefix string, renditions []model.Rendition, tokens publish.TokenMap) (string, error) {
	var b strings.Builder
	b.WriteString(header)
	for _, r := range renditions {
		uri, err := publish.DownloadURL(host, bucket, destPrefix+"/"+r.Name+".m3u8", tokens)
		if err != nil {
			return "", fmt.Errorf("master playlist: %w", err)
		}
		writeStreamInf(&b, r)
		b.WriteString(uri + "\n")
	}
	return b.String(), nil
}

// RewriteVariant replaces every segment reference in a variant playlist
// with its tokenized absolute URL. Comment lines and blank lines pass
// through unchanged, as does anything that is not a segment reference.
func RewriteVariant(raw, host, bucket, destPrefix string, tokens publish.TokenMap) (string, error) {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.HasSuffix(trimmed, ".ts") {
			continue
		}
		uri, err := publish.DownloadURL(host, bucket, destPrefix+"/"+trimmed, tokens)
		if err != nil {
			return "", fmt.Errorf("variant playlist: %w", err)
		}
		lines[i] = uri
	}
	return strings.Join(lines, "\n"), nil
}

func writeStreamInf(b *strings.Builder, r model.Rendition) {
	fmt.Fprintf(b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", bandwidth(r), r.Width, r.Height)
}

// bandwidth estimates a rendition's peak bandwidth from its configured
// bitrates. Both master variants go through this one function so their
// BANDWIDTH fields are bit-for-bit identical.
func bandwidth(r model.Rendition) int {
	return (kbps(r.VideoBitrate) + kbps(r.AudioBitrate)) * 1000
}

func kbps(bitrate string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(bitrate), "k"))
	if err != nil {
		return 0
	}
	return n
}
