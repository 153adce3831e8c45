// Package publish uploads one job's finished artifacts to object storage,
// assigning each object a per-download access token, and builds the
// tokenized URLs the rest of the application hands out.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TokenMap maps destination object paths to their access tokens. It is
// built during publication and read-only afterwards.
type TokenMap map[string]string

// ObjectWriter is the slice of object storage the publisher needs. The
// minio-backed implementation lives in internal/s3storage.
type ObjectWriter interface {
	UploadFile(ctx context.Context, objectPath, localPath, contentType, cacheControl, token string) error
	UploadBytes(ctx context.Context, objectPath string, data []byte, contentType, cacheControl, token string) error
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, objectPath string) error
}

// Cache policies per artifact kind. Segments are immutable by
// construction (eviction removes the whole prefix before re-publish);
// playlists are re-validated so a re-transcode propagates quickly.
const (
	playlistContentType = "application/vnd.apple.mpegurl"
	playlistCache       = "public, max-age=60, must-revalidate"
	segmentContentType  = "video/mp2t"
	segmentCache        = "public, max-age=31536000, immutable"
	posterContentType   = "image/jpeg"
	posterCache         = "public, max-age=86400, immutable"
)

// Publisher writes artifacts to the site content bucket.
type Publisher struct {
	store ObjectWriter
}

// NewPublisher constructs a Publisher.
func NewPublisher(store ObjectWriter) *Publisher {
	return &Publisher{store: store}
}

// PublishDirectory uploads every regular file in localDir (non-recursive)
// to destPrefix, minting a fresh random token per object, and returns the
// resulting token map. Upload order is immaterial.
func (p *Publisher) PublishDirectory(ctx context.Context, localDir, destPrefix string) (TokenMap, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	tokens := make(TokenMap, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		contentType, cacheControl := policyFor(entry.Name())
		token := uuid.NewString()
		dest := destPrefix + "/" + entry.Name()
		local := filepath.Join(localDir, entry.Name())
		if err := p.store.UploadFile(ctx, dest, local, contentType, cacheControl, token); err != nil {
			return nil, fmt.Errorf("upload %s: %w", dest, err)
		}
		tokens[dest] = token
	}
	return tokens, nil
}

// UploadPlaylist overwrites an already-published playlist with rewritten
// text, preserving the token assigned during PublishDirectory.
func (p *Publisher) UploadPlaylist(ctx context.Context, destPath, text, token string) error {
	if err := p.store.UploadBytes(ctx, destPath, []byte(text), playlistContentType, playlistCache, token); err != nil {
		return fmt.Errorf("upload playlist %s: %w", destPath, err)
	}
	return nil
}

// EvictPrefix deletes every object currently published under destPrefix.
// Callers treat failures as non-fatal: a partially stale stream beats an
// aborted job.
func (p *Publisher) EvictPrefix(ctx context.Context, destPrefix string) error {
	objects, err := p.store.ListPrefix(ctx, destPrefix+"/")
	if err != nil {
		return fmt.Errorf("list %s: %w", destPrefix, err)
	}
	var errs []error
	for _, obj := range objects {
		if err := p.store.Remove(ctx, obj); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", obj, err))
		}
	}
	return errors.Join(errs...)
}

func policyFor(filename string) (contentType, cacheControl string) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m3u8":
		return playlistContentType, playlistCache
	case ".ts":
		return segmentContentType, segmentCache
	case ".jpg", ".jpeg":
		return posterContentType, posterCache
	default:
		return "application/octet-stream", playlistCache
	}
}

// DownloadURL composes the tokenized download URL for a published object.
// A missing token indicates publish/rewrite ordering was violated and is
// surfaced as an error the orchestrator treats as fatal.
func DownloadURL(host, bucket, objectPath string, tokens TokenMap) (string, error) {
	token, ok := tokens[objectPath]
	if !ok {
		return "", fmt.Errorf("no access token recorded for %s", objectPath)
	}
	return fmt.Sprintf("https://%s/v0/b/%s/o/%s?alt=media&token=%s",
		host, bucket, encodeObjectPath(objectPath), token), nil
}

// encodeObjectPath percent-encodes a full object path as a single URL
// path segment, including the slashes.
func encodeObjectPath(objectPath string) string {
	return strings.ReplaceAll(url.PathEscape(objectPath), "/", "%2F")
}
