package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
)

// EvidenceCatalog manages the typed evidence subfolders of each person. It only
// touches files; callers refresh and persist the person's metadata.
type EvidenceCatalog struct {
	persons *PersonStore
}

func NewEvidenceCatalog(persons *PersonStore) *EvidenceCatalog {
	return &EvidenceCatalog{persons: persons}
}

// Scan lists evidence by type in scan order, then by file name.
func (c *EvidenceCatalog) Scan(ctx context.Context, personID uuid.UUID) ([]models.EvidenceFile, error) {
	dir, err := c.persons.Dir(personID)
	if err != nil {
		return nil, err
	}

	files := []models.EvidenceFile{}
	for _, kind := range models.EvidenceTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(filepath.Join(dir, kind.Folder()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("scan %s", kind.Folder()), err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			if !e.Type().IsRegular() || isHidden(e.Name()) {
				continue
			}
			ef, err := describe(dir, kind, e.Name())
			if err != nil {
				return nil, err
			}
			files = append(files, *ef)
		}
	}
	return files, nil
}

// Ingest copies sourcePath into the person's subfolder for kind. The source is
// never moved; a name collision yields stem_N.ext instead of an overwrite.
func (c *EvidenceCatalog) Ingest(ctx context.Context, personID uuid.UUID, sourcePath string, kind models.EvidenceType) (*models.EvidenceFile, error) {
	name := filepath.Base(sourcePath)
	if err := c.validate(personID, name, kind); err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Newf(apperr.SourceNotFound, "source file %s does not exist", sourcePath)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "stat source file", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.Newf(apperr.SourceNotFound, "source %s is not a regular file", sourcePath)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "open source file", err)
	}
	defer src.Close()

	return c.IngestReader(ctx, personID, name, src, kind)
}

// IngestReader stores the content of r as evidence named name.
func (c *EvidenceCatalog) IngestReader(ctx context.Context, personID uuid.UUID, name string, r io.Reader, kind models.EvidenceType) (*models.EvidenceFile, error) {
	if err := c.validate(personID, name, kind); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := c.persons.Dir(personID)
	if err != nil {
		return nil, err
	}
	subdir := filepath.Join(dir, kind.Folder())
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.IO, "create evidence subfolder", err)
	}

	final, err := copyIntoDir(subdir, name, r)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("store evidence %s", name), err)
	}
	return describe(dir, kind, filepath.Base(final))
}

func (c *EvidenceCatalog) validate(personID uuid.UUID, name string, kind models.EvidenceType) error {
	if _, err := c.persons.Dir(personID); err != nil {
		return err
	}
	if _, ok := models.ParseEvidenceType(string(kind)); !ok {
		return apperr.Newf(apperr.UnsupportedFileType, "unknown evidence type %q", kind)
	}
	if !validFileName(name) {
		return apperr.Newf(apperr.InvalidInput, "invalid evidence file name %q", name)
	}
	if !kind.Allows(name) {
		return apperr.Newf(apperr.UnsupportedFileType, "%s is not an accepted %s file (allowed: %s)",
			name, kind, strings.Join(kind.Extensions(), ", "))
	}
	return nil
}

// Contains reports whether the subfolder for kind already holds name, or a
// collision-renamed copy of it, with the given size.
func (c *EvidenceCatalog) Contains(personID uuid.UUID, kind models.EvidenceType, name string, size int64) (bool, error) {
	dir, err := c.persons.Dir(personID)
	if err != nil {
		return false, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, kind.Folder()))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.IO, fmt.Sprintf("read %s", kind.Folder()), err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !isVariantOf(e.Name(), name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() == size {
			return true, nil
		}
	}
	return false, nil
}

// Path resolves a stored path (e.g. "images/a.jpg") to an absolute file path.
func (c *EvidenceCatalog) Path(personID uuid.UUID, storedPath string) (string, models.EvidenceType, error) {
	dir, err := c.persons.Dir(personID)
	if err != nil {
		return "", "", err
	}

	clean := path.Clean(filepath.ToSlash(storedPath))
	folder, name, ok := strings.Cut(clean, "/")
	if !ok || !validFileName(name) {
		return "", "", apperr.Newf(apperr.InvalidInput, "invalid evidence path %q", storedPath)
	}
	kind, ok := models.EvidenceTypeForFolder(folder)
	if !ok {
		return "", "", apperr.Newf(apperr.InvalidInput, "invalid evidence path %q", storedPath)
	}

	abs := filepath.Join(dir, folder, name)
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", apperr.Newf(apperr.NotFound, "evidence %s not found", storedPath)
	}
	if err != nil {
		return "", "", apperr.Wrap(apperr.IO, "stat evidence", err)
	}
	if !info.Mode().IsRegular() {
		return "", "", apperr.Newf(apperr.NotFound, "evidence %s not found", storedPath)
	}
	return abs, kind, nil
}

// Delete removes one evidence file.
func (c *EvidenceCatalog) Delete(personID uuid.UUID, storedPath string) error {
	abs, _, err := c.Path(personID, storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return apperr.Wrap(apperr.IO, fmt.Sprintf("delete evidence %s", storedPath), err)
	}
	return nil
}

// Detach moves an evidence file to a hidden name in its subfolder, where scans
// no longer see it. restore puts it back under storedPath; purge removes it.
func (c *EvidenceCatalog) Detach(personID uuid.UUID, storedPath string) (restore, purge func() error, err error) {
	abs, _, err := c.Path(personID, storedPath)
	if err != nil {
		return nil, nil, err
	}
	hidden := filepath.Join(filepath.Dir(abs), trashPrefix+uuid.NewString()+"-"+filepath.Base(abs))
	if err := os.Rename(abs, hidden); err != nil {
		return nil, nil, apperr.Wrap(apperr.IO, fmt.Sprintf("delete evidence %s", storedPath), err)
	}

	restore = func() error {
		if err := os.Rename(hidden, abs); err != nil {
			return apperr.Wrap(apperr.IO, fmt.Sprintf("restore evidence %s", storedPath), err)
		}
		return nil
	}
	purge = func() error {
		if err := os.Remove(hidden); err != nil {
			return apperr.Wrap(apperr.IO, fmt.Sprintf("delete evidence %s", storedPath), err)
		}
		return nil
	}
	return restore, purge, nil
}

// Rename gives an evidence file a new name within its subfolder. The new name
// must satisfy the same allowlist as ingest and never overwrites another file.
func (c *EvidenceCatalog) Rename(personID uuid.UUID, storedPath, newName string) (*models.EvidenceFile, error) {
	abs, kind, err := c.Path(personID, storedPath)
	if err != nil {
		return nil, err
	}
	if !validFileName(newName) {
		return nil, apperr.Newf(apperr.InvalidInput, "invalid evidence file name %q", newName)
	}
	if !kind.Allows(newName) {
		return nil, apperr.Newf(apperr.UnsupportedFileType, "%s is not an accepted %s file", newName, kind)
	}
	if filepath.Base(abs) == newName {
		dir, _ := c.persons.Dir(personID)
		return describe(dir, kind, newName)
	}

	target, err := uniquePath(filepath.Dir(abs), newName)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "rename evidence", err)
	}
	if err := os.Rename(abs, target); err != nil {
		return nil, apperr.Wrap(apperr.IO, "rename evidence", err)
	}
	dir, err := c.persons.Dir(personID)
	if err != nil {
		return nil, err
	}
	return describe(dir, kind, filepath.Base(target))
}

func describe(personDir string, kind models.EvidenceType, name string) (*models.EvidenceFile, error) {
	abs := filepath.Join(personDir, kind.Folder(), name)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("stat evidence %s", name), err)
	}

	ef := &models.EvidenceFile{
		OriginalName: name,
		FileType:     kind,
		Size:         info.Size(),
		CreatedAt:    info.ModTime().UTC(),
		StoredPath:   path.Join(kind.Folder(), name),
	}
	if mt, err := mimetype.DetectFile(abs); err == nil {
		ef.MimeType = mt.String()
	}
	return ef, nil
}
