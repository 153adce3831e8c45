package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lumenweb/sitemedia/internal/classify"
	"github.com/lumenweb/sitemedia/internal/model"
	"github.com/lumenweb/sitemedia/internal/publish"
)

const (
	testHost   = "storage.example.com"
	testBucket = "site-content"
)

type fakeEncoder struct {
	failRendition string
	encoded       []string
	outDirs       []string
}

func (f *fakeEncoder) ExtractPoster(_ context.Context, _, outDir string) (string, error) {
	f.outDirs = append(f.outDirs, outDir)
	p := filepath.Join(outDir, "poster.jpg")
	return p, os.WriteFile(p, []byte("jpeg"), 0o644)
}

func (f *fakeEncoder) EncodeRendition(_ context.Context, _, outDir string, r model.Rendition) error {
	if r.Name == f.failRendition {
		return fmt.Errorf("encode rendition %s: exit status 1", r.Name)
	}
	f.encoded = append(f.encoded, r.Name)
	seg := r.Name + "_000.ts"
	if err := os.WriteFile(filepath.Join(outDir, seg), []byte("segment"), 0o644); err != nil {
		return err
	}
	text := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6.000000,\n" + seg + "\n#EXT-X-ENDLIST\n"
	return os.WriteFile(filepath.Join(outDir, r.Name+".m3u8"), []byte(text), 0o644)
}

type fakeSourceStore struct {
	downloads  []string
	localPaths []string
}

func (f *fakeSourceStore) DownloadToFile(_ context.Context, objectPath, localPath string) error {
	f.downloads = append(f.downloads, objectPath)
	f.localPaths = append(f.localPaths, localPath)
	return os.WriteFile(localPath, []byte("source"), 0o644)
}

// fakeObjectWriter backs a real publish.Publisher so the orchestrator
// tests exercise real token assignment and eviction behavior.
type fakeObjectWriter struct {
	existing []string
	objects  map[string][]byte
	tokens   map[string]string
	removed  []string
}

func newFakeObjectWriter() *fakeObjectWriter {
	return &fakeObjectWriter{objects: map[string][]byte{}, tokens: map[string]string{}}
}

func (f *fakeObjectWriter) UploadFile(_ context.Context, objectPath, localPath, _, _, token string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[objectPath] = data
	f.tokens[objectPath] = token
	return nil
}

func (f *fakeObjectWriter) UploadBytes(_ context.Context, objectPath string, data []byte, _, _, token string) error {
	f.objects[objectPath] = append([]byte(nil), data...)
	f.tokens[objectPath] = token
	return nil
}

func (f *fakeObjectWriter) ListPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, k := range f.existing {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeObjectWriter) Remove(_ context.Context, objectPath string) error {
	f.removed = append(f.removed, objectPath)
	return nil
}

type fakeReconciler struct {
	ready     []classify.Result
	mediaURLs []string
	failed    []classify.Result
	readyErr  error
}

func (f *fakeReconciler) MarkReady(_ context.Context, c classify.Result, mediaURL, _ string) error {
	f.ready = append(f.ready, c)
	f.mediaURLs = append(f.mediaURLs, mediaURL)
	return f.readyErr
}

func (f *fakeReconciler) MarkError(_ context.Context, c classify.Result) error {
	f.failed = append(f.failed, c)
	return nil
}

type pipelineFixture struct {
	proc  *Processor
	enc   *fakeEncoder
	store *fakeSourceStore
	ow    *fakeObjectWriter
	repo  *fakeReconciler
}

func newFixture() *pipelineFixture {
	enc := &fakeEncoder{}
	store := &fakeSourceStore{}
	ow := newFakeObjectWriter()
	repo := &fakeReconciler{}
	proc := NewProcessor(enc, store, publish.NewPublisher(ow), repo, testHost, testBucket)
	return &pipelineFixture{proc: proc, enc: enc, store: store, ow: ow, repo: repo}
}

func (fx *pipelineFixture) assertWorkspaceGone(t *testing.T) {
	t.Helper()
	for _, dir := range fx.enc.outDirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("workspace dir %s still exists", dir)
		}
	}
	for _, p := range fx.store.localPaths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("downloaded source %s still exists", p)
		}
	}
}

func TestProcessBackgroundVideo(t *testing.T) {
	fx := newFixture()
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "videos/public/acme/homeBackground.mp4",
		ContentType: "video/mp4",
	}
	if err := fx.proc.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fx.repo.ready) != 1 {
		t.Fatalf("expected 1 ready reconciliation, got %d", len(fx.repo.ready))
	}
	c := fx.repo.ready[0]
	if c.Category != classify.CategoryBackground || c.SiteKey != "acme" {
		t.Fatalf("reconciled wrong record: %+v", c)
	}
	wantURLPrefix := "https://" + testHost + "/v0/b/" + testBucket + "/o/videos%2Fpublic%2Facme%2Fhls%2Fmaster.m3u8?alt=media&token="
	if !strings.HasPrefix(fx.repo.mediaURLs[0], wantURLPrefix) {
		t.Fatalf("media URL = %q, want prefix %q", fx.repo.mediaURLs[0], wantURLPrefix)
	}
	// One poster, master, and per rendition a playlist plus a segment.
	wantObjects := 2 + 2*len(model.Renditions)
	if len(fx.ow.objects) != wantObjects {
		t.Fatalf("published %d objects, want %d", len(fx.ow.objects), wantObjects)
	}
	// Every published object carries a distinct token.
	seen := map[string]bool{}
	for path, token := range fx.ow.tokens {
		if token == "" {
			t.Fatalf("object %s has no token", path)
		}
		if seen[token] {
			t.Fatalf("token %s reused", token)
		}
		seen[token] = true
	}
	// Published playlists must reference tokenized absolute URLs.
	master := string(fx.ow.objects["videos/public/acme/hls/master.m3u8"])
	if !strings.Contains(master, "?alt=media&token=") {
		t.Fatalf("master playlist not rewritten:\n%s", master)
	}
	variant := string(fx.ow.objects["videos/public/acme/hls/360p.m3u8"])
	if strings.Contains(variant, "\n360p_000.ts") {
		t.Fatalf("variant playlist still has relative segment refs:\n%s", variant)
	}
	if !strings.Contains(variant, "360p_000.ts?alt=media&token=") {
		t.Fatalf("variant playlist missing tokenized URL:\n%s", variant)
	}
	fx.assertWorkspaceGone(t)
}

func TestProcessProductVideoDestination(t *testing.T) {
	fx := newFixture()
	fx.ow.existing = []string{
		"products/public/acme/hls/sku123/stale.m3u8",
		"products/public/acme/hls/sku123/stale_000.ts",
		"products/public/other/hls/sku9/keep.m3u8",
	}
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "products/public/acme/sku123.mov",
		ContentType: "video/quicktime",
	}
	if err := fx.proc.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fx.ow.removed) != 2 {
		t.Fatalf("evicted %d objects, want 2: %v", len(fx.ow.removed), fx.ow.removed)
	}
	for path := range fx.ow.objects {
		if !strings.HasPrefix(path, "products/public/acme/hls/sku123/") {
			t.Fatalf("object published outside destination prefix: %s", path)
		}
	}
	if c := fx.repo.ready[0]; c.Category != classify.CategoryProduct || c.EntityID != "sku123" {
		t.Fatalf("reconciled wrong record: %+v", c)
	}
}

func TestProcessEncodeFailureAbortsAndReconciles(t *testing.T) {
	fx := newFixture()
	fx.enc.failRendition = model.Renditions[1].Name
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "videos/public/acme/sections/starters.mp4",
		ContentType: "video/mp4",
	}
	err := fx.proc.Process(context.Background(), evt)
	if err == nil {
		t.Fatalf("expected encode failure to propagate")
	}
	if len(fx.enc.encoded) != 1 || fx.enc.encoded[0] != model.Renditions[0].Name {
		t.Fatalf("renditions after failure = %v, want only %s", fx.enc.encoded, model.Renditions[0].Name)
	}
	if len(fx.ow.objects) != 0 {
		t.Fatalf("nothing should be published on failure, got %d objects", len(fx.ow.objects))
	}
	if len(fx.repo.failed) != 1 || fx.repo.failed[0].Category != classify.CategorySection {
		t.Fatalf("failure reconciliation = %+v", fx.repo.failed)
	}
	if len(fx.repo.ready) != 0 {
		t.Fatalf("unexpected success reconciliation")
	}
	fx.assertWorkspaceGone(t)
}

func TestProcessIgnoresPipelineOutput(t *testing.T) {
	fx := newFixture()
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "videos/public/acme/hls/360p.ts",
		ContentType: "video/mp2t",
	}
	if err := fx.proc.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fx.store.downloads) != 0 {
		t.Fatalf("downstream download happened for ignored object")
	}
	if len(fx.ow.objects) != 0 || len(fx.repo.ready) != 0 || len(fx.repo.failed) != 0 {
		t.Fatalf("ignored object caused side effects")
	}
}

func TestProcessOptInWithoutRecord(t *testing.T) {
	fx := newFixture()
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "misc/acme/clip.mp4",
		ContentType: "video/mp4",
		Metadata:    map[string]string{"transcode": "hls"},
	}
	if err := fx.proc.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fx.ow.objects) == 0 {
		t.Fatalf("opt-in job should still publish")
	}
	if len(fx.repo.ready) != 0 || len(fx.repo.failed) != 0 {
		t.Fatalf("opt-in job must not touch business records")
	}
	fx.assertWorkspaceGone(t)
}

func TestProcessSwallowsReconcilerFailure(t *testing.T) {
	fx := newFixture()
	fx.repo.readyErr = errors.New("db down")
	evt := model.StorageFinalizeEvent{
		ObjectPath:  "videos/public/acme/homeBackground.mp4",
		ContentType: "video/mp4",
	}
	if err := fx.proc.Process(context.Background(), evt); err != nil {
		t.Fatalf("reconciler failure must not fail the job: %v", err)
	}
	fx.assertWorkspaceGone(t)
}
