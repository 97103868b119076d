package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/archive"
	"github.com/your-org/ema/internal/merge"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/pkg/dto"
)

// Progress receives the stage of a long-running archive operation and its
// completed and total units. Export and merge progress arrive while the
// repository lock is held, so a Progress may call Notify but no other
// Service method.
type Progress func(stage string, done, total int)

const (
	StageExport   = "export"
	StageUpload   = "upload"
	StageDownload = "download"
	StageExtract  = "extract"
	StageMerge    = "merge"
)

func (p Progress) stage(name string) archive.Progress {
	if p == nil {
		return nil
	}
	return func(done, total int) { p(name, done, total) }
}

func (p Progress) step(name string) {
	if p != nil {
		p(name, 0, 1)
	}
}

type ExportRequest struct {
	// PersonIDs selects the persons to export; empty means all of them.
	PersonIDs   []uuid.UUID
	Destination string
	// Mirror also uploads the finished archive to the archive mirror.
	Mirror bool
}

type ExportResult struct {
	archive.ExportResult
	ObjectKey string `json:"object_key,omitempty"`
}

type ImportRequest struct {
	Path string
	// ObjectKey imports an archive from the mirror instead of Path.
	ObjectKey string
}

// Export writes the selected persons into a new archive. Mutations wait until
// the archive is complete.
func (s *Service) Export(ctx context.Context, req ExportRequest, progress Progress) (res *ExportResult, err error) {
	defer func() { observability.ObserveMutation("export", err) }()

	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		return nil, apperr.New(apperr.InvalidInput, "destination is required")
	}
	if filepath.Ext(dest) == "" {
		dest += archive.Extension
	}
	if req.Mirror && s.mirror == nil {
		return nil, apperr.New(apperr.InvalidInput, "archive mirror is not configured")
	}

	written, err := s.exportLocked(ctx, req.PersonIDs, dest, progress)
	if err != nil {
		return nil, err
	}
	res = &ExportResult{ExportResult: *written}

	if req.Mirror {
		progress.step(StageUpload)
		key, err := s.mirror.Upload(ctx, written.Path)
		if err != nil {
			return nil, apperr.Wrap(apperr.ArchiveWrite, "upload archive to mirror", err)
		}
		res.ObjectKey = key
	}

	slog.Info("archive exported", "path", res.Path, "persons", res.Persons, "files", res.Files, "object_key", res.ObjectKey)
	s.Notify(dto.NewEvent(dto.EventArchiveExported, uuid.Nil, res))
	return res, nil
}

func (s *Service) exportLocked(ctx context.Context, ids []uuid.UUID, dest string, progress Progress) (*archive.ExportResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		for _, p := range s.sortedLocked() {
			ids = append(ids, p.ID)
		}
	}

	sources := make([]archive.Source, 0, len(ids))
	for _, id := range ids {
		if _, err := s.personLocked(id); err != nil {
			return nil, err
		}
		folder, err := s.persons.Folder(id)
		if err != nil {
			return nil, err
		}
		dir, err := s.persons.Dir(id)
		if err != nil {
			return nil, err
		}
		sources = append(sources, archive.Source{Folder: folder, Dir: dir})
	}
	return archive.Export(ctx, sources, dest, progress.stage(StageExport))
}

// Import stages an archive and merges it into the repository. A non-nil report
// is returned whenever the merge started, also alongside a cancellation error.
func (s *Service) Import(ctx context.Context, req ImportRequest, progress Progress) (report *merge.Report, err error) {
	defer func() { observability.ObserveMutation("import", err) }()

	path := strings.TrimSpace(req.Path)
	if req.ObjectKey != "" {
		if s.mirror == nil {
			return nil, apperr.New(apperr.InvalidInput, "archive mirror is not configured")
		}
		progress.step(StageDownload)
		downloaded, cleanup, err := s.download(ctx, req.ObjectKey)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = downloaded
	}
	if path == "" {
		return nil, apperr.New(apperr.InvalidInput, "archive path or object key is required")
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Newf(apperr.SourceNotFound, "archive %s does not exist", path)
	}

	staged, err := archive.Import(ctx, path, s.stagingDir, progress.stage(StageExtract))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := staged.Close(); cerr != nil {
			slog.Warn("remove import staging directory", "error", cerr)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	report, err = s.engine.Merge(ctx, s.sortedLocked(), staged, progress.stage(StageMerge))
	if _, rerr := s.reloadLocked(context.WithoutCancel(ctx)); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return report, err
	}

	attrs := []any{
		"archive", path,
		"persons_created", report.PersonsCreated,
		"persons_merged", report.PersonsMerged,
		"added", report.Added(),
		"skipped_folders", len(report.Skipped),
		"failures", len(report.Failures),
	}
	if report.Partial() {
		slog.Warn("archive imported with omissions", attrs...)
	} else {
		slog.Info("archive imported", attrs...)
	}
	s.notify(dto.EventArchiveImported, uuid.Nil, report)
	return report, nil
}

func (s *Service) download(ctx context.Context, key string) (string, func(), error) {
	if s.stagingDir != "" {
		if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
			return "", nil, apperr.Wrap(apperr.IO, "create staging directory", err)
		}
	}
	dir, err := os.MkdirTemp(s.stagingDir, "ema-download-")
	if err != nil {
		return "", nil, apperr.Wrap(apperr.IO, "create download directory", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	dest := filepath.Join(dir, filepath.Base(key))
	if err := s.mirror.Download(ctx, key, dest); err != nil {
		cleanup()
		return "", nil, apperr.Wrap(apperr.ArchiveRead, fmt.Sprintf("download %s", key), err)
	}
	return dest, cleanup, nil
}

// RemoteArchives lists archives held by the mirror.
func (s *Service) RemoteArchives(ctx context.Context) ([]storage.RemoteArchive, error) {
	if s.mirror == nil {
		return nil, apperr.New(apperr.InvalidInput, "archive mirror is not configured")
	}
	return s.mirror.List(ctx)
}
