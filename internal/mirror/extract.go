package mirror

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// Limits bound the resources a single archive may consume.
type Limits struct {
	MaxFiles      int
	MaxFileBytes  int64
	MaxTotalBytes int64
}

// DefaultLimits are generous enough for large data repositories while still
// stopping decompression bombs.
var DefaultLimits = Limits{
	MaxFiles:      100_000,
	MaxFileBytes:  512 << 20,
	MaxTotalBytes: 4 << 30,
}

// Extractor materializes zip archives produced by code hosts. Every archive
// wraps its content in a single "{repo}-{revision}/" directory which is
// stripped on extraction.
type Extractor struct {
	limits  Limits
	exclude []string
	logger  Logger
}

// NewExtractor creates a new extractor with DefaultLimits
func NewExtractor() *Extractor {
	return &Extractor{
		limits: DefaultLimits,
		logger: NopLogger(),
	}
}

// WithLimits replaces the extraction limits. Zero fields keep their defaults.
func (e *Extractor) WithLimits(l Limits) *Extractor {
	if l.MaxFiles > 0 {
		e.limits.MaxFiles = l.MaxFiles
	}
	if l.MaxFileBytes > 0 {
		e.limits.MaxFileBytes = l.MaxFileBytes
	}
	if l.MaxTotalBytes > 0 {
		e.limits.MaxTotalBytes = l.MaxTotalBytes
	}
	return e
}

// WithExclude skips entries whose stripped path matches any of the
// doublestar patterns (e.g. ".github/**").
func (e *Extractor) WithExclude(patterns []string) (*Extractor, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	e.exclude = append([]string(nil), patterns...)
	return e, nil
}

// WithLogger sets the logger used for skipped entries.
func (e *Extractor) WithLogger(l Logger) *Extractor {
	if l != nil {
		e.logger = l
	}
	return e
}

// Extract writes every file entry of the zip archive at archivePath under
// targetDir. targetDir is expected to be empty. The first entry that would
// resolve outside targetDir aborts extraction with a *SecurityError before
// any of its bytes are written.
func (e *Extractor) Extract(ctx context.Context, archivePath, targetDir string) (*ExtractStats, error) {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve target dir: %w", ErrExtractFailed, err)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create target dir: %w", ErrExtractFailed, err)
	}

	// ErrInsecurePath still yields a usable reader; every entry is checked below
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: open archive: %w", ErrExtractFailed, err)
	}
	defer reader.Close()

	stats := &ExtractStats{}
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
			continue
		}

		if file.Mode()&os.ModeSymlink != 0 {
			e.logger.Warn("skipping symlink entry", "entry", file.Name)
			stats.Skipped++
			continue
		}

		rel, ok := stripTopLevel(file.Name)
		if !ok {
			e.logger.Debug("skipping entry outside archive root", "entry", file.Name)
			stats.Skipped++
			continue
		}

		target, err := resolveEntry(root, file.Name, rel)
		if err != nil {
			return stats, err
		}

		if e.excluded(rel) {
			stats.Skipped++
			continue
		}

		if stats.Files+1 > e.limits.MaxFiles {
			return stats, fmt.Errorf("%w: more than %d files", ErrArchiveLimit, e.limits.MaxFiles)
		}
		if file.UncompressedSize64 > uint64(e.limits.MaxFileBytes) {
			return stats, fmt.Errorf("%w: %s is larger than %d bytes", ErrArchiveLimit, file.Name, e.limits.MaxFileBytes)
		}

		budget := e.limits.MaxFileBytes
		if remaining := e.limits.MaxTotalBytes - stats.Bytes; remaining < budget {
			budget = remaining
		}

		n, err := writeEntry(file, target, budget)
		if err != nil {
			return stats, err
		}

		stats.Files++
		stats.Bytes += n
	}

	return stats, nil
}

func (e *Extractor) excluded(rel string) bool {
	for _, pattern := range e.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// stripTopLevel drops the leading "{repo}-{revision}/" segment. It reports
// false for entries that have nothing left after stripping.
func stripTopLevel(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")

	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return "", false
	}

	rel := name[idx+1:]
	if rel == "" {
		return "", false
	}
	return rel, true
}

// resolveEntry maps a stripped entry path to its location under root and
// verifies that the location is a strict descendant of root.
func resolveEntry(root, entry, rel string) (string, error) {
	violation := func(reason string) error {
		return &SecurityError{Entry: entry, Target: root, Reason: reason}
	}

	if strings.IndexByte(rel, 0) >= 0 {
		return "", violation("NUL byte in path")
	}

	native := filepath.FromSlash(rel)
	if path.IsAbs(rel) || filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", violation("absolute path")
	}

	target := filepath.Join(root, native)
	if !isDescendant(root, target) {
		return "", violation("path traversal")
	}

	// A symlink already inside root must not redirect the write elsewhere
	resolved, err := securejoin.SecureJoin(root, native)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", ErrExtractFailed, entry, err)
	}
	if resolved != target {
		return "", violation("path redirected by symlink")
	}

	return target, nil
}

// isDescendant walks the ancestry of p and reports whether root is among
// its ancestors. p equal to root is not a descendant.
func isDescendant(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)

	for {
		parent := filepath.Dir(p)
		if parent == root {
			return true
		}
		if parent == p {
			return false
		}
		p = parent
	}
}

// writeEntry copies one zip entry to target, failing once more than budget
// bytes are produced.
func writeEntry(file *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("%w: create parent dir for %s: %w", ErrExtractFailed, target, err)
	}

	src, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open entry %s: %w", ErrExtractFailed, file.Name, err)
	}
	defer src.Close()

	perm := os.FileMode(0644)
	if file.Mode().Perm()&0111 != 0 {
		perm = 0755
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("%w: create file %s: %w", ErrExtractFailed, target, err)
	}

	// Copy one byte past the budget so oversize entries are detected even
	// when the header under-reports their size
	n, err := io.CopyN(out, src, budget+1)
	if err != nil && !errors.Is(err, io.EOF) {
		out.Close()
		return n, fmt.Errorf("%w: write file %s: %w", ErrExtractFailed, target, err)
	}
	if n > budget {
		out.Close()
		return n, fmt.Errorf("%w: %s exceeds remaining budget of %d bytes", ErrArchiveLimit, file.Name, budget)
	}
	if uint64(n) != file.UncompressedSize64 {
		out.Close()
		return n, fmt.Errorf("%w: %s: wrote %d bytes, header declares %d", ErrExtractFailed, file.Name, n, file.UncompressedSize64)
	}

	if err := out.Close(); err != nil {
		return n, fmt.Errorf("%w: close file %s: %w", ErrExtractFailed, target, err)
	}

	return n, nil
}
