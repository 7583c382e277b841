// Package backup provides tar.gz-based backup and restore of edgescan state:
// the SQLite database plus the config, registry and health-check files.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/HerbHall/edgescan/internal/fsutil"
	"github.com/HerbHall/edgescan/internal/store"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "edgescan.db"

// maxEntrySize bounds a single restored file.
const maxEntrySize = 1 << 30

// ErrExists is returned by Restore when a target file exists and force is
// not set.
var ErrExists = errors.New("file already exists")

// Backup creates a tar.gz archive containing the SQLite database and any of
// extra that exist. It performs a WAL checkpoint before copying the
// database to ensure consistency. Entries are stored by base name.
func Backup(ctx context.Context, dbPath string, extra []string, outputPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %w", err)
	}

	if err := checkpointWAL(ctx, dbPath); err != nil {
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	if err := addFileToTar(tw, dbPath, DatabaseFile); err != nil {
		return fmt.Errorf("adding database to archive: %w", err)
	}

	seen := map[string]bool{DatabaseFile: true}
	for _, path := range extra {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			// Optional files that do not exist are skipped.
			continue
		}
		name := filepath.Base(path)
		if seen[name] {
			return fmt.Errorf("duplicate archive entry %q", name)
		}
		seen[name] = true
		if err := addFileToTar(tw, path, name); err != nil {
			return fmt.Errorf("adding %s to archive: %w", path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return outFile.Close()
}

// Restore extracts a Backup archive into dir. Only regular files are
// restored, each under its base name. Existing files are kept unless force
// is set. It returns the restored file names in archive order.
func Restore(_ context.Context, inputPath, dir string, force bool) ([]string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	var restored []string
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return restored, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(filepath.Clean(hdr.Name))
		if name == "." || name == ".." || name == string(filepath.Separator) {
			continue
		}
		if hdr.Size > maxEntrySize {
			return restored, fmt.Errorf("entry %s exceeds size limit", name)
		}

		target := filepath.Join(dir, name)
		if !force {
			if _, err := os.Stat(target); err == nil {
				return restored, fmt.Errorf("%s: %w (use --force to overwrite)", target, ErrExists)
			}
		}

		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return restored, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := fsutil.WriteFileAtomic(target, data, 0o644); err != nil {
			return restored, fmt.Errorf("restoring %s: %w", name, err)
		}
		restored = append(restored, name)
	}
	if len(restored) == 0 {
		return nil, fmt.Errorf("archive %s contains no files", inputPath)
	}
	return restored, nil
}

// checkpointWAL flushes the WAL into dbPath so the file is self-contained.
func checkpointWAL(ctx context.Context, dbPath string) error {
	db, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Checkpoint(ctx)
}

// addFileToTar adds a single file to the tar archive under the given name.
func addFileToTar(tw *tar.Writer, filePath, archiveName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}
