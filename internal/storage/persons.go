package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
)

// MetadataFile is the per-person metadata file name.
const MetadataFile = "person_data.json"

// LoadWarning reports a person folder that could not be listed.
type LoadWarning struct {
	Folder string `json:"folder"`
	Reason string `json:"reason"`
}

// PersonStore keeps one folder per person under root.
type PersonStore struct {
	root     string
	resolver *Resolver
	workers  int
}

func NewPersonStore(root string, workers int) (*PersonStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.IO, "create repository root", err)
	}
	if workers <= 0 {
		workers = 1
	}

	s := &PersonStore{root: abs, resolver: NewResolver(abs), workers: workers}
	s.purgeStale()
	return s, nil
}

func (s *PersonStore) Root() string {
	return s.root
}

func (s *PersonStore) Resolver() *Resolver {
	return s.resolver
}

// purgeStale removes leftovers of interrupted creates and deletes.
func (s *PersonStore) purgeStale() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, tempPrefix) || strings.HasPrefix(name, trashPrefix) {
			if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
				slog.Warn("remove stale repository entry", "path", name, "error", err)
			}
		}
	}
}

// Create materializes a new empty person.
func (s *PersonStore) Create(ctx context.Context, name string) (*models.Person, error) {
	return s.CreateFrom(ctx, &models.Person{Name: name})
}

// CreateFrom materializes a new person carrying tmpl's content under a fresh id.
// Entries keep their ids; quotes are re-pointed at the new person.
func (s *PersonStore) CreateFrom(ctx context.Context, tmpl *models.Person) (*models.Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := models.NewPerson(strings.TrimSpace(tmpl.Name))
	p.Notes = tmpl.Notes
	p.Tags = append([]string(nil), tmpl.Tags...)
	if len(tmpl.Information) > 0 {
		p.Information = append(p.Information, tmpl.Information...)
	}
	for _, q := range tmpl.Clone().Quotes {
		q.PersonID = p.ID
		p.Quotes = append(p.Quotes, q)
	}

	folder, err := s.resolver.Resolve(p.ID, p.Name)
	if err != nil {
		return nil, err
	}

	if err := s.materialize(folder, p); err != nil {
		s.resolver.Release(p.ID)
		return nil, err
	}
	return p, nil
}

// materialize builds the folder under a hidden temporary name and renames it
// into place, so a failed create leaves nothing behind.
func (s *PersonStore) materialize(folder string, p *models.Person) error {
	tmp, err := os.MkdirTemp(s.root, tempPrefix+"person-")
	if err != nil {
		return apperr.Wrap(apperr.IO, "create person folder", err)
	}

	build := func() error {
		for _, kind := range models.EvidenceTypes {
			if err := os.Mkdir(filepath.Join(tmp, kind.Folder()), 0o755); err != nil {
				return err
			}
		}
		data, err := encodePerson(p)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(tmp, MetadataFile), data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, filepath.Join(s.root, folder))
	}

	if err := build(); err != nil {
		_ = os.RemoveAll(tmp)
		return apperr.Wrap(apperr.IO, fmt.Sprintf("create person folder %s", folder), err)
	}
	return nil
}

type loadResult struct {
	folder string
	person *models.Person
	err    error
}

// LoadAll rescans the repository and rebuilds the folder mapping. Folders with
// missing or corrupt metadata are reported as warnings and skipped.
func (s *PersonStore) LoadAll(ctx context.Context) ([]*models.Person, []LoadWarning, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.IO, "read repository root", err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			folders = append(folders, e.Name())
		}
	}

	results := make([]loadResult, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, folder := range folders {
		i, folder := i, folder
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := readPerson(filepath.Join(s.root, folder, MetadataFile))
			results[i] = loadResult{folder: folder, person: p, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	s.resolver.Reset()
	persons := make([]*models.Person, 0, len(results))
	var warnings []LoadWarning
	for _, r := range results {
		if r.err == nil {
			if _, dup := s.resolver.Folder(r.person.ID); dup {
				r.err = fmt.Errorf("duplicate person id %s", r.person.ID)
			}
		}
		if r.err != nil {
			slog.Warn("skipping person folder", "folder", r.folder, "error", r.err)
			s.resolver.Reserve(r.folder)
			warnings = append(warnings, LoadWarning{Folder: r.folder, Reason: r.err.Error()})
			continue
		}
		s.resolver.Assign(r.person.ID, r.folder)
		persons = append(persons, r.person)
	}
	return persons, warnings, nil
}

// Get reads the current metadata of a person.
func (s *PersonStore) Get(id uuid.UUID) (*models.Person, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}
	p, err := readPerson(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("read person %s", id), err)
	}
	return p, nil
}

// Save rewrites person_data.json via write-to-temp-then-rename.
func (s *PersonStore) Save(p *models.Person) error {
	dir, err := s.Dir(p.ID)
	if err != nil {
		return err
	}
	data, err := encodePerson(p)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, fmt.Sprintf("save person %s", p.ID), err)
	}
	return nil
}

// Delete removes the person's folder. The folder is first renamed out of the
// listing so a failed removal never leaves a half-deleted person visible.
func (s *PersonStore) Delete(id uuid.UUID) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}

	trash := filepath.Join(s.root, trashPrefix+id.String())
	if err := os.Rename(dir, trash); err != nil {
		return apperr.Wrap(apperr.IO, fmt.Sprintf("delete person %s", id), err)
	}
	s.resolver.Release(id)

	if err := os.RemoveAll(trash); err != nil {
		slog.Warn("remove deleted person folder", "person_id", id, "path", trash, "error", err)
	}
	return nil
}

// Dir returns the absolute folder of a known person.
func (s *PersonStore) Dir(id uuid.UUID) (string, error) {
	folder, ok := s.resolver.Folder(id)
	if !ok {
		return "", apperr.Newf(apperr.NotFound, "person %s not found", id)
	}
	return filepath.Join(s.root, folder), nil
}

// Folder returns the folder name of a known person.
func (s *PersonStore) Folder(id uuid.UUID) (string, error) {
	folder, ok := s.resolver.Folder(id)
	if !ok {
		return "", apperr.Newf(apperr.NotFound, "person %s not found", id)
	}
	return folder, nil
}

// EnsureLayout recreates any missing evidence subfolder of a person.
func (s *PersonStore) EnsureLayout(id uuid.UUID) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	for _, kind := range models.EvidenceTypes {
		if err := os.MkdirAll(filepath.Join(dir, kind.Folder()), 0o755); err != nil {
			return apperr.Wrap(apperr.IO, "create evidence subfolder", err)
		}
	}
	return nil
}

func encodePerson(p *models.Person) ([]byte, error) {
	p.Normalize()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode person: %w", err)
	}
	return data, nil
}

// DecodePerson parses person_data.json content.
func DecodePerson(data []byte) (*models.Person, error) {
	var p models.Person
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%s has no name", MetadataFile)
	}
	p.Normalize()
	return &p, nil
}

func readPerson(path string) (*models.Person, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s missing", MetadataFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetadataFile, err)
	}
	p, err := DecodePerson(data)
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, fmt.Errorf("%s has no id", MetadataFile)
	}
	return p, nil
}
