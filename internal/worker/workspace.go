package worker

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
)

// workspace is the scratch state owned by exactly one invocation: a
// uniquely named local copy of the source plus an output directory.
type workspace struct {
	sourcePath string
	outDir     string
}

func newWorkspace(objectPath string) (*workspace, error) {
	outDir, err := os.MkdirTemp("", "sitemedia-out-*")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	src, err := os.CreateTemp("", "sitemedia-src-*"+strings.ToLower(path.Ext(objectPath)))
	if err != nil {
		_ = os.RemoveAll(outDir)
		return nil, fmt.Errorf("create source file: %w", err)
	}
	if err := src.Close(); err != nil {
		_ = os.Remove(src.Name())
		_ = os.RemoveAll(outDir)
		return nil, fmt.Errorf("close source file: %w", err)
	}
	return &workspace{sourcePath: src.Name(), outDir: outDir}, nil
}

// cleanup deletes the downloaded source and the scratch directory. It is
// deferred at job start and runs on success and failure alike.
func (w *workspace) cleanup() {
	if err := os.Remove(w.sourcePath); err != nil && !os.IsNotExist(err) {
		log.Printf("remove source %s: %v", w.sourcePath, err)
	}
	if err := os.RemoveAll(w.outDir); err != nil {
		log.Printf("remove workspace %s: %v", w.outDir, err)
	}
}
