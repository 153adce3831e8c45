// Package worker runs the transcode pipeline. One asynq task is one
// pipeline invocation; stages run strictly in sequence and every
// invocation owns a private workspace that is deleted on all exit paths.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/lumenweb/sitemedia/internal/classify"
	"github.com/lumenweb/sitemedia/internal/encoder"
	"github.com/lumenweb/sitemedia/internal/model"
	"github.com/lumenweb/sitemedia/internal/playlist"
	"github.com/lumenweb/sitemedia/internal/publish"
	"github.com/lumenweb/sitemedia/internal/queue"
)

// MasterFilename is the top-level manifest published for every job.
const MasterFilename = "master.m3u8"

// MediaEncoder produces the poster frame and the segmented renditions.
type MediaEncoder interface {
	ExtractPoster(ctx context.Context, sourcePath, outDir string) (string, error)
	EncodeRendition(ctx context.Context, sourcePath, outDir string, r model.Rendition) error
}

// SourceStore fetches the triggering object into the local workspace.
type SourceStore interface {
	DownloadToFile(ctx context.Context, objectPath, localPath string) error
}

// ArtifactPublisher publishes a job's output directory and maintains the
// destination prefix.
type ArtifactPublisher interface {
	PublishDirectory(ctx context.Context, localDir, destPrefix string) (publish.TokenMap, error)
	UploadPlaylist(ctx context.Context, destPath, text, token string) error
	EvictPrefix(ctx context.Context, destPrefix string) error
}

// Reconciler merges job outcomes into business records.
type Reconciler interface {
	MarkReady(ctx context.Context, c classify.Result, mediaURL, posterURL string) error
	MarkError(ctx context.Context, c classify.Result) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	enc    MediaEncoder
	store  SourceStore
	pub    ArtifactPublisher
	repo   Reconciler
	host   string
	bucket string
}

// NewProcessor constructs a pipeline processor.
func NewProcessor(enc MediaEncoder, store SourceStore, pub ArtifactPublisher, repo Reconciler, host, bucket string) *Processor {
	return &Processor{enc: enc, store: store, pub: pub, repo: repo, host: host, bucket: bucket}
}

// Handler registers the transcode job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TranscodeMediaTask, p.handleTranscode)
	return mux
}

func (p *Processor) handleTranscode(ctx context.Context, task *asynq.Task) error {
	var evt model.StorageFinalizeEvent
	if err := json.Unmarshal(task.Payload(), &evt); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.Process(ctx, evt)
}

// Process runs one pipeline invocation end to end. Out-of-scope objects
// exit early and silently; any later failure triggers best-effort error
// reconciliation before the deferred workspace cleanup.
func (p *Processor) Process(ctx context.Context, evt model.StorageFinalizeEvent) error {
	c, ok := classify.Classify(evt.ObjectPath, evt.ContentType, evt.Metadata)
	if !ok {
		log.Printf("skipping %s: not a transcode source", evt.ObjectPath)
		return nil
	}
	log.Printf("transcoding %s (category=%s site=%s)", evt.ObjectPath, c.Category, c.SiteKey)

	ws, err := newWorkspace(evt.ObjectPath)
	if err != nil {
		p.reconcileFailure(ctx, c)
		return fmt.Errorf("create workspace: %w", err)
	}
	defer ws.cleanup()

	mediaURL, posterURL, err := p.run(ctx, evt, c, ws)
	if err != nil {
		log.Printf("transcode failed for %s: %v", evt.ObjectPath, err)
		p.reconcileFailure(ctx, c)
		return err
	}
	p.reconcileSuccess(ctx, c, mediaURL, posterURL)
	log.Printf("transcode complete for %s -> %s", evt.ObjectPath, c.DestinationPrefix())
	return nil
}

// run executes the fallible stages and returns the published master and
// poster URLs. Reconciliation and cleanup stay in Process so they happen
// on every path.
func (p *Processor) run(ctx context.Context, evt model.StorageFinalizeEvent, c classify.Result, ws *workspace) (string, string, error) {
	if err := p.store.DownloadToFile(ctx, evt.ObjectPath, ws.sourcePath); err != nil {
		return "", "", err
	}
	if _, err := p.enc.ExtractPoster(ctx, ws.sourcePath, ws.outDir); err != nil {
		return "", "", err
	}
	// Renditions run one after another: the first failure aborts the job
	// without sibling processes to cancel.
	for _, r := range model.Renditions {
		if err := p.enc.EncodeRendition(ctx, ws.sourcePath, ws.outDir, r); err != nil {
			return "", "", err
		}
	}
	master := playlist.BuildMasterRelative(model.Renditions)
	if err := os.WriteFile(filepath.Join(ws.outDir, MasterFilename), []byte(master), 0o644); err != nil {
		return "", "", fmt.Errorf("write master playlist: %w", err)
	}

	destPrefix := c.DestinationPrefix()
	// Best effort: stale leftovers are preferable to a failed job.
	if err := p.pub.EvictPrefix(ctx, destPrefix); err != nil {
		log.Printf("evicting old output under %s failed (continuing): %v", destPrefix, err)
	}
	tokens, err := p.pub.PublishDirectory(ctx, ws.outDir, destPrefix)
	if err != nil {
		return "", "", err
	}

	// Published playlists still reference relative names; rewrite them
	// now that every object has a token, preserving assigned tokens.
	for _, r := range model.Renditions {
		raw, err := os.ReadFile(filepath.Join(ws.outDir, r.Name+".m3u8"))
		if err != nil {
			return "", "", fmt.Errorf("read variant playlist %s: %w", r.Name, err)
		}
		text, err := playlist.RewriteVariant(string(raw), p.host, p.bucket, destPrefix, tokens)
		if err != nil {
			return "", "", err
		}
		destPath := destPrefix + "/" + r.Name + ".m3u8"
		token, ok := tokens[destPath]
		if !ok {
			return "", "", fmt.Errorf("no access token recorded for %s", destPath)
		}
		if err := p.pub.UploadPlaylist(ctx, destPath, text, token); err != nil {
			return "", "", err
		}
	}
	absMaster, err := playlist.BuildMasterAbsolute(p.host, p.bucket, destPrefix, model.Renditions, tokens)
	if err != nil {
		return "", "", err
	}
	masterPath := destPrefix + "/" + MasterFilename
	token, ok := tokens[masterPath]
	if !ok {
		return "", "", fmt.Errorf("no access token recorded for %s", masterPath)
	}
	if err := p.pub.UploadPlaylist(ctx, masterPath, absMaster, token); err != nil {
		return "", "", err
	}

	mediaURL, err := publish.DownloadURL(p.host, p.bucket, masterPath, tokens)
	if err != nil {
		return "", "", err
	}
	posterURL, err := publish.DownloadURL(p.host, p.bucket, destPrefix+"/"+encoder.PosterFilename, tokens)
	if err != nil {
		return "", "", err
	}
	return mediaURL, posterURL, nil
}

func (p *Processor) reconcileSuccess(ctx context.Context, c classify.Result, mediaURL, posterURL string) {
	if c.Category == classify.CategoryUnrecognized {
		log.Printf("warning: %s published but no business record matches its path", c.DestinationPrefix())
		return
	}
	if err := p.repo.MarkReady(ctx, c, mediaURL, posterURL); err != nil {
		log.Printf("reconcile success for %s/%s failed: %v", c.Category, c.SiteKey, err)
	}
}

// reconcileFailure marks the classified record errored. Its own failures
// are swallowed so cleanup always runs.
func (p *Processor) reconcileFailure(ctx context.Context, c classify.Result) {
	if c.Category == classify.CategoryUnrecognized {
		return
	}
	if err := p.repo.MarkError(ctx, c); err != nil {
		log.Printf("reconcile failure for %s/%s failed: %v", c.Category, c.SiteKey, err)
	}
}
