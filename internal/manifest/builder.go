package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chainops/snapshot-publisher/internal/config"
	"github.com/chainops/snapshot-publisher/internal/export"
	"github.com/chainops/snapshot-publisher/internal/fileio"
	"github.com/chainops/snapshot-publisher/internal/jobs"
)

// ErrNoFiles reports an empty publishable set. An empty manifest would
// silently mask a misconfigured root, so it is an error instead.
var ErrNoFiles = errors.New("no files to hash")

// entryDocuments are always part of the manifest when present on disk.
var entryDocuments = []string{"index.html", "privacy.html"}

const hashWorkers = 4

// Builder regenerates the checksum manifest over the published file set:
// the entry documents under the HTML root plus every snapshot artifact.
type Builder struct {
	htmlRoot     string
	snapshotsDir string
	manifestPath string
	writer       *fileio.Writer
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{
		htmlRoot:     cfg.HTMLRoot,
		snapshotsDir: cfg.SnapshotsDir,
		manifestPath: cfg.ManifestPath,
		writer:       fileio.NewWriter(),
	}
}

// Rebuild hashes every publishable file and atomically replaces the
// manifest. It runs after fresh exports and after idempotent short-circuits
// alike, so the manifest always reflects the current artifact set.
func (b *Builder) Rebuild(ctx context.Context, log *jobs.LiveLog) error {
	files := b.collect()
	if len(files) == 0 {
		return ErrNoFiles
	}

	log.Appendf("hashing %d files", len(files))
	sums, err := b.hashAll(files)
	if err != nil {
		return fmt.Errorf("hashing files: %w", err)
	}

	var buf bytes.Buffer
	for i, file := range files {
		buf.WriteString(sums[i])
		buf.WriteString("  ")
		buf.WriteString(b.relative(file))
		buf.WriteByte('\n')
	}

	if err := b.writer.WriteFileAtomic(b.manifestPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("publishing manifest: %w", err)
	}

	log.Appendf("manifest %s updated, %d entries", filepath.Base(b.manifestPath), len(files))
	return nil
}

// collect returns the publishable set sorted by path: the entry documents
// that exist plus every artifact in the snapshots directory.
func (b *Builder) collect() []string {
	var files []string
	for _, name := range entryDocuments {
		p := filepath.Join(b.htmlRoot, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}

	// A missing or unreadable snapshots directory contributes nothing.
	entries, err := os.ReadDir(b.snapshotsDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), export.Extension) {
				files = append(files, filepath.Join(b.snapshotsDir, entry.Name()))
			}
		}
	}

	sort.Strings(files)
	return files
}

// hashAll digests the files concurrently. sums[i] belongs to files[i], so
// the manifest keeps the sorted order no matter which hash finishes first.
func (b *Builder) hashAll(files []string) ([]string, error) {
	sums := make([]string, len(files))

	var g errgroup.Group
	g.SetLimit(hashWorkers)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			sum, err := hashFile(file)
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// relative maps an absolute path to its manifest form, relative to the HTML
// root. Files outside the root keep their absolute path.
func (b *Builder) relative(file string) string {
	rel, err := filepath.Rel(b.htmlRoot, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return rel
}
