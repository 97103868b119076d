package catalog

import (
	"context"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/pkg/dto"
)

// ScanEvidence lists the evidence files of a person.
func (s *Service) ScanEvidence(ctx context.Context, id uuid.UUID) ([]models.EvidenceFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.personLocked(id); err != nil {
		return nil, err
	}
	return s.evidence.Scan(ctx, id)
}

// AddEvidence copies a file from the local filesystem into the person's folder.
func (s *Service) AddEvidence(ctx context.Context, id uuid.UUID, sourcePath string, kind models.EvidenceType) (ef *models.EvidenceFile, err error) {
	defer func() { observability.ObserveMutation("add_evidence", err) }()

	return s.changeEvidence(ctx, id, dto.EventEvidenceAdded, func() (*evidenceChange, error) {
		return s.ingested(id)(s.evidence.Ingest(ctx, id, sourcePath, kind))
	})
}

// AddEvidenceReader stores an uploaded stream as evidence named name.
func (s *Service) AddEvidenceReader(ctx context.Context, id uuid.UUID, name string, r io.Reader, kind models.EvidenceType) (ef *models.EvidenceFile, err error) {
	defer func() { observability.ObserveMutation("add_evidence", err) }()

	return s.changeEvidence(ctx, id, dto.EventEvidenceAdded, func() (*evidenceChange, error) {
		return s.ingested(id)(s.evidence.IngestReader(ctx, id, name, r, kind))
	})
}

func (s *Service) RenameEvidence(ctx context.Context, id uuid.UUID, storedPath, newName string) (ef *models.EvidenceFile, err error) {
	defer func() { observability.ObserveMutation("rename_evidence", err) }()

	return s.changeEvidence(ctx, id, dto.EventEvidenceRenamed, func() (*evidenceChange, error) {
		oldName := path.Base(path.Clean(filepath.ToSlash(storedPath)))
		renamed, err := s.evidence.Rename(id, storedPath, newName)
		if err != nil {
			return nil, err
		}
		return &evidenceChange{
			file: renamed,
			undo: func() error {
				_, err := s.evidence.Rename(id, renamed.StoredPath, oldName)
				return err
			},
		}, nil
	})
}

func (s *Service) DeleteEvidence(ctx context.Context, id uuid.UUID, storedPath string) (err error) {
	defer func() { observability.ObserveMutation("delete_evidence", err) }()

	_, err = s.changeEvidence(ctx, id, dto.EventEvidenceRemoved, func() (*evidenceChange, error) {
		restore, purge, err := s.evidence.Detach(id, storedPath)
		if err != nil {
			return nil, err
		}
		return &evidenceChange{
			file:   &models.EvidenceFile{StoredPath: storedPath},
			undo:   restore,
			commit: purge,
		}, nil
	})
	return err
}

// EvidencePath resolves a stored path to the file on disk, for downloads.
func (s *Service) EvidencePath(id uuid.UUID, storedPath string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.personLocked(id); err != nil {
		return "", err
	}
	abs, _, err := s.evidence.Path(id, storedPath)
	return abs, err
}

// evidenceChange is a file operation that stays revertible until commit.
type evidenceChange struct {
	file   *models.EvidenceFile
	undo   func() error
	commit func() error
}

// ingested wraps a freshly stored file; undoing it removes the copy.
func (s *Service) ingested(id uuid.UUID) func(*models.EvidenceFile, error) (*evidenceChange, error) {
	return func(ef *models.EvidenceFile, err error) (*evidenceChange, error) {
		if err != nil {
			return nil, err
		}
		return &evidenceChange{
			file: ef,
			undo: func() error { return s.evidence.Delete(id, ef.StoredPath) },
		}, nil
	}
}

// changeEvidence runs a file operation and refreshes the person's updated_at.
// When the metadata save fails the file operation is reverted.
func (s *Service) changeEvidence(ctx context.Context, id uuid.UUID, event string, op func() (*evidenceChange, error)) (*models.EvidenceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, err := s.personLocked(id)
	if err != nil {
		return nil, err
	}

	change, err := op()
	if err != nil {
		return nil, err
	}

	p := current.Clone()
	p.Touch()
	if err := s.persons.Save(p); err != nil {
		if undoErr := change.undo(); undoErr != nil {
			slog.Error("revert evidence change", "person_id", id, "path", change.file.StoredPath, "error", undoErr)
		}
		return nil, err
	}
	if change.commit != nil {
		if err := change.commit(); err != nil {
			slog.Warn("finish evidence change", "person_id", id, "path", change.file.StoredPath, "error", err)
		}
	}

	s.cache[id] = p
	s.notify(event, id, change.file)
	return change.file, nil
}
