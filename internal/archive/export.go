package archive

import (
	"context"
	"fmt"
	"io"
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

// ExportResult summarizes a written archive.
type ExportResult struct {
	Path    string `json:"path"`
	Persons int    `json:"persons"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
}

// Export writes sources into a new archive at dest. The archive is assembled in
// a temporary file beside dest and renamed into place only when complete; on
// any failure nothing is left at dest.
func Export(ctx context.Context, sources []Source, dest string, progress Progress) (*ExportResult, error) {
	start := time.Now()
	defer func() {
		observability.ArchiveDuration.WithLabelValues("export").Observe(time.Since(start).Seconds())
	}()

	if len(sources) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "nothing to export")
	}
	if err := checkFolders(sources); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ArchiveWrite, "create archive directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-export-*"+Extension)
	if err != nil {
		return nil, apperr.Wrap(apperr.ArchiveWrite, "create archive file", err)
	}
	tmpPath := tmp.Name()

	result, err := writeArchive(ctx, tmp, sources, progress)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close archive: %w", cerr)
	}
	if err == nil {
		err = os.Rename(tmpPath, dest)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ArchiveWrite, fmt.Sprintf("export to %s", dest), err)
	}

	if info, err := os.Stat(dest); err == nil {
		result.Bytes = info.Size()
	}
	result.Path = dest
	return result, nil
}

func checkFolders(sources []Source) error {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if s.Folder == "" || strings.ContainsAny(s.Folder, `/\`) || strings.HasPrefix(s.Folder, ".") {
			return apperr.Newf(apperr.InvalidInput, "invalid archive folder %q", s.Folder)
		}
		key := strings.ToLower(s.Folder)
		if seen[key] {
			return apperr.Newf(apperr.InvalidInput, "duplicate archive folder %q", s.Folder)
		}
		seen[key] = true
	}
	return nil
}

func writeArchive(ctx context.Context, w io.Writer, sources []Source, progress Progress) (*ExportResult, error) {
	zw := zip.NewWriter(w)
	now := time.Now().UTC()

	exportType := ExportCollection
	if len(sources) == 1 {
		exportType = ExportSinglePerson
	}
	manifest := &Manifest{
		FormatVersion: FormatVersion,
		ExportType:    exportType,
		ExportedAt:    now,
		PersonCount:   len(sources),
	}
	data, err := manifest.encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeBytes(zw, ManifestFile, data, now); err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := writePerson(zw, src, now)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", src.Folder, err)
		}
		result.Persons++
		result.Files += files
		observability.ArchiveEntries.WithLabelValues("export", "person", "ok").Inc()
		progress.report(i+1, len(sources))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return result, nil
}

// writePerson adds one person folder: metadata, every evidence subfolder (also
// when empty) and the regular files inside them.
func writePerson(zw *zip.Writer, src Source, modified time.Time) (int, error) {
	data, err := os.ReadFile(filepath.Join(src.Dir, storage.MetadataFile))
	if err != nil {
		return 0, err
	}
	if err := writeDir(zw, src.Folder+"/", modified); err != nil {
		return 0, err
	}
	if err := writeBytes(zw, path.Join(src.Folder, storage.MetadataFile), data, modified); err != nil {
		return 0, err
	}

	files := 0
	for _, kind := range models.EvidenceTypes {
		sub := filepath.Join(src.Dir, kind.Folder())
		if err := writeDir(zw, path.Join(src.Folder, kind.Folder())+"/", modified); err != nil {
			return 0, err
		}
		entries, err := os.ReadDir(sub)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := writeFile(zw, path.Join(src.Folder, kind.Folder(), e.Name()), filepath.Join(sub, e.Name())); err != nil {
				return 0, err
			}
			files++
			observability.ArchiveEntries.WithLabelValues("export", string(kind), "ok").Inc()
		}
	}
	return files, nil
}

func writeDir(zw *zip.Writer, name string, modified time.Time) error {
	_, err := zw.CreateHeader(&zip.FileHeader{Name: name, Modified: modified})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}

func writeBytes(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
