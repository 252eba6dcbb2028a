// File: internal/archive/extract.go
// Brief: Zip extraction into package snapshot directories.

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

var ErrArchiveFailure = errors.New("archive failure")

// Extractor unpacks an archive into a directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, dest string) (*ExtractResult, error)
}

type ExtractOptions struct {
	// Force allows overwriting files that already exist in the destination.
	Force   bool
	Workers int
}

type ExtractResult struct {
	ArchivePath     string `json:"archivePath"`
	DestinationPath string `json:"destinationPath"`
	FileCount       int    `json:"fileCount"`
	TotalBytes      int64  `json:"totalBytes"`
}

// Zip extracts zip files such as those produced by `git archive --format=zip`.
type Zip struct {
	Options ExtractOptions
}

func NewZip(opts ExtractOptions) *Zip {
	return &Zip{Options: opts}
}

func (z *Zip) Extract(ctx context.Context, archivePath, dest string) (*ExtractResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	archivePath = strings.TrimSpace(archivePath)
	if archivePath == "" {
		return nil, fmt.Errorf("%w: archive path is required", ErrArchiveFailure)
	}
	destPath, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArchiveFailure, archivePath, err)
	}
	defer r.Close()

	var (
		files []*zip.File
		links []*zip.File
		total int64
	)
	for _, f := range r.File {
		target, err := safeJoin(destPath, f.Name)
		if err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", target, err)
			}
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			links = append(links, f)
			continue
		}
		files = append(files, f)
		total += int64(f.UncompressedSize64)
	}

	workers := z.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target, err := safeJoin(destPath, f.Name)
			if err != nil {
				return err
			}
			return z.writeFile(f, target)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Links are created after every regular file so no write goes through one.
	for _, f := range links {
		target, err := safeJoin(destPath, f.Name)
		if err != nil {
			return nil, err
		}
		if err := z.writeLink(destPath, f, target); err != nil {
			return nil, err
		}
	}
	if err := checkLinks(destPath, links); err != nil {
		return nil, err
	}

	return &ExtractResult{
		ArchivePath:     archivePath,
		DestinationPath: destPath,
		FileCount:       len(files) + len(links),
		TotalBytes:      total,
	}, nil
}

func (z *Zip) writeFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", target, err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !z.Options.Force {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrArchiveFailure, f.Name, err)
	}
	defer rc.Close()
	out, err := os.OpenFile(target, flags, mode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("file already exists: %s", target)
		}
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: write %s: %v", ErrArchiveFailure, target, err)
	}
	return out.Close()
}

// maxLinkTarget bounds the body read from a symlink entry.
const maxLinkTarget = 4096

func (z *Zip) writeLink(dest string, f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrArchiveFailure, f.Name, err)
	}
	body, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget+1))
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("%w: read link %s: %v", ErrArchiveFailure, f.Name, err)
	}
	if len(body) == 0 || len(body) > maxLinkTarget {
		return fmt.Errorf("%w: invalid link target for %s", ErrArchiveFailure, f.Name)
	}
	linkTarget := filepath.FromSlash(string(body))
	if filepath.IsAbs(linkTarget) || strings.HasPrefix(string(body), "/") {
		return fmt.Errorf("%w: absolute link target %s -> %s", ErrArchiveFailure, f.Name, body)
	}
	resolved := filepath.Join(filepath.Dir(target), linkTarget)
	if resolved != dest && !strings.HasPrefix(resolved, dest+string(os.PathSeparator)) {
		return fmt.Errorf("%w: link %s points outside destination: %s", ErrArchiveFailure, f.Name, body)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", target, err)
	}
	if z.Options.Force {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}
	if err := os.Symlink(linkTarget, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("file already exists: %s", target)
		}
		return fmt.Errorf("symlink %s: %w", target, err)
	}
	return nil
}

// checkLinks rejects links that escape dest once chained through other links.
// Dangling links are kept, as git keeps them.
func checkLinks(dest string, links []*zip.File) error {
	if len(links) == 0 {
		return nil
	}
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	for _, f := range links {
		resolved, err := filepath.EvalSymlinks(filepath.Join(dest, filepath.FromSlash(f.Name)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: resolve link %s: %v", ErrArchiveFailure, f.Name, err)
		}
		if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: link %s points outside destination", ErrArchiveFailure, f.Name)
		}
	}
	return nil
}

func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: invalid file path in archive: %s", ErrArchiveFailure, name)
	}
	target := filepath.Join(dest, clean)
	if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: refusing to write outside destination: %s", ErrArchiveFailure, name)
	}
	return target, nil
}
