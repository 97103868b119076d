package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/storage"
)

// Staged is the parsed content of an archive. Evidence files live in a staging
// directory until Close.
type Staged struct {
	Manifest *Manifest
	Bundles  []PersonBundle
	Skipped  []SkippedEntry

	dir string
}

// Close removes the staging directory.
func (s *Staged) Close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

type stagedFolder struct {
	metadata []byte
	evidence []StagedFile
	broken   string
}

// Import opens the archive at archivePath and stages its person folders under
// stagingDir (os.TempDir when empty). Folders that cannot be parsed are
// reported in Skipped; the repository is not touched.
func Import(ctx context.Context, archivePath, stagingDir string, progress Progress) (*Staged, error) {
	start := time.Now()
	defer func() {
		observability.ArchiveDuration.WithLabelValues("import").Observe(time.Since(start).Seconds())
	}()

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ArchiveRead, fmt.Sprintf("open archive %s", archivePath), err)
	}
	defer zr.Close()

	if stagingDir != "" {
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.IO, "create staging directory", err)
		}
	}
	dir, err := os.MkdirTemp(stagingDir, "ema-import-")
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "create staging directory", err)
	}
	staged := &Staged{dir: dir}

	folders := make(map[string]*stagedFolder)
	folder := func(name string) *stagedFolder {
		f, ok := folders[name]
		if !ok {
			f = &stagedFolder{}
			folders[name] = f
		}
		return f
	}

	total := len(zr.File)
	for i, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			staged.Close()
			return nil, err
		}
		progress.report(i+1, total)

		name, ok := entryName(zf.Name)
		if !ok {
			slog.Warn("ignoring unsafe archive entry", "archive", archivePath, "entry", zf.Name)
			observability.ArchiveEntries.WithLabelValues("import", "entry", "unsafe").Inc()
			continue
		}
		parts := strings.Split(name, "/")

		if len(parts) == 1 {
			if zf.FileInfo().IsDir() {
				if !ignoredFolder(parts[0]) {
					folder(parts[0])
				}
				continue
			}
			if parts[0] == ManifestFile {
				staged.Manifest = readManifest(zf)
			}
			continue
		}
		if ignoredFolder(parts[0]) {
			continue
		}
		pf := folder(parts[0])
		if pf.broken != "" || zf.FileInfo().IsDir() {
			continue
		}

		switch {
		case len(parts) == 2 && parts[1] == storage.MetadataFile:
			data, err := readEntry(zf, maxMetadataBytes)
			if err != nil {
				pf.broken = fmt.Sprintf("read %s: %v", storage.MetadataFile, err)
				continue
			}
			pf.metadata = data
		case len(parts) == 3:
			kind, ok := models.EvidenceTypeForFolder(parts[1])
			if !ok || strings.HasPrefix(parts[2], ".") {
				continue
			}
			sf, err := stageFile(zf, filepath.Join(dir, parts[0], parts[1]), parts[2], kind)
			if err != nil {
				pf.broken = fmt.Sprintf("extract %s: %v", name, err)
				continue
			}
			pf.evidence = append(pf.evidence, *sf)
		}
	}

	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pf := folders[name]
		reason := pf.broken
		var person *models.Person
		if reason == "" && pf.metadata == nil {
			reason = storage.MetadataFile + " missing"
		}
		if reason == "" {
			p, err := storage.DecodePerson(pf.metadata)
			if err != nil {
				reason = err.Error()
			}
			person = p
		}
		if reason != "" {
			slog.Warn("skipping archive folder", "archive", archivePath, "folder", name, "reason", reason)
			observability.ArchiveEntries.WithLabelValues("import", "person", "skipped").Inc()
			staged.Skipped = append(staged.Skipped, SkippedEntry{Folder: name, Reason: reason})
			continue
		}
		observability.ArchiveEntries.WithLabelValues("import", "person", "ok").Inc()
		staged.Bundles = append(staged.Bundles, PersonBundle{Person: person, Folder: name, Evidence: pf.evidence})
	}
	return staged, nil
}

// entryName cleans a zip entry name and rejects names that would escape the
// staging directory.
func entryName(raw string) (string, bool) {
	if raw == "" || strings.Contains(raw, `\`) || strings.HasPrefix(raw, "/") {
		return "", false
	}
	clean := path.Clean(raw)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", false
		}
	}
	return clean, true
}

func ignoredFolder(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

func readManifest(zf *zip.File) *Manifest {
	data, err := readEntry(zf, maxMetadataBytes)
	if err != nil {
		slog.Warn("unreadable archive manifest", "error", err)
		return nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("unreadable archive manifest", "error", err)
		return nil
	}
	return &m
}

var errEntryTooLarge = errors.New("entry too large")

func readEntry(zf *zip.File, limit int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errEntryTooLarge
	}
	return data, nil
}

func stageFile(zf *zip.File, dir, name string, kind models.EvidenceType) (*StagedFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	target := filepath.Join(dir, name)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, err
	}
	return &StagedFile{Type: kind, Name: name, Path: target, Size: n}, nil
}
