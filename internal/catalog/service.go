// Package catalog is the single entry point for every repository command. It
// serializes mutations and lets reads run concurrently.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/merge"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/pkg/dto"
)

// Notifier receives catalog change events.
type Notifier interface {
	Notify(event *dto.WSEvent)
}

// Notifiers fans an event out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(event *dto.WSEvent) {
	for _, n := range ns {
		if n != nil {
			n.Notify(event)
		}
	}
}

// Mirror stores archives remotely. *storage.ArchiveMirror implements it.
type Mirror interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Download(ctx context.Context, key, destPath string) error
	List(ctx context.Context) ([]storage.RemoteArchive, error)
}

type Options struct {
	Root        string
	ScanWorkers int
	MatchByName bool
	// StagingDir receives extracted archives during import; empty means os.TempDir.
	StagingDir string
	Mirror     Mirror
	Notifier   Notifier
}

type Service struct {
	mu       sync.RWMutex
	persons  *storage.PersonStore
	evidence *storage.EvidenceCatalog
	engine   *merge.Engine

	stagingDir string
	mirror     Mirror

	// notifier is read without mu: events are emitted while mu is held and
	// may loop back into Notify.
	notifier atomic.Pointer[notifierRef]

	cache    map[uuid.UUID]*models.Person
	warnings []storage.LoadWarning
}

// New opens the repository at opts.Root, creating it if needed, and loads every
// person.
func New(ctx context.Context, opts Options) (*Service, error) {
	persons, err := storage.NewPersonStore(opts.Root, opts.ScanWorkers)
	if err != nil {
		return nil, err
	}
	evidence := storage.NewEvidenceCatalog(persons)

	s := &Service{
		persons:    persons,
		evidence:   evidence,
		engine:     merge.NewEngine(persons, evidence, opts.MatchByName),
		stagingDir: opts.StagingDir,
		mirror:     opts.Mirror,
		cache:      make(map[uuid.UUID]*models.Person),
	}
	s.SetNotifier(opts.Notifier)
	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Root() string {
	return s.persons.Root()
}

// SetNotifier replaces the event sink. Used when the sink is built after the
// service, e.g. a hub that needs the service for its handlers.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier.Store(&notifierRef{n})
}

type notifierRef struct {
	Notifier
}

// Reload rescans the repository from disk, replacing the in-memory view.
func (s *Service) Reload(ctx context.Context) ([]storage.LoadWarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) ([]storage.LoadWarning, error) {
	persons, warnings, err := s.persons.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	s.cache = make(map[uuid.UUID]*models.Person, len(persons))
	for _, p := range persons {
		s.cache[p.ID] = p
	}
	s.warnings = warnings
	observability.PersonsTotal.Set(float64(len(s.cache)))
	slog.Debug("repository loaded", "root", s.persons.Root(), "persons", len(persons), "skipped", len(warnings))
	return warnings, nil
}

// Refresh reloads from disk and reports whether the set of persons or any of
// their metadata changed.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.fingerprintLocked()
	if _, err := s.reloadLocked(ctx); err != nil {
		return false, err
	}
	after := s.fingerprintLocked()
	if len(before) != len(after) {
		return true, nil
	}
	for id, v := range before {
		a, ok := after[id]
		if !ok || a.name != v.name || !a.updatedAt.Equal(v.updatedAt) {
			return true, nil
		}
	}
	return false, nil
}

type fingerprint struct {
	name      string
	updatedAt time.Time
}

func (s *Service) fingerprintLocked() map[uuid.UUID]fingerprint {
	out := make(map[uuid.UUID]fingerprint, len(s.cache))
	for id, p := range s.cache {
		out[id] = fingerprint{name: p.Name, updatedAt: p.UpdatedAt}
	}
	return out
}

// Warnings returns the folders skipped by the last reload.
func (s *Service) Warnings() []storage.LoadWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.LoadWarning(nil), s.warnings...)
}

// Folder returns the folder name of a person.
func (s *Service) Folder(id uuid.UUID) (string, error) {
	return s.persons.Folder(id)
}

// sortedLocked returns the cached persons ordered by name, then creation time.
func (s *Service) sortedLocked() []*models.Person {
	out := make([]*models.Person, 0, len(s.cache))
	for _, p := range s.cache {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Service) notify(eventType string, personID uuid.UUID, data any) {
	s.Notify(dto.NewEvent(eventType, personID, data))
}

// Notify forwards an externally produced event, e.g. from the repository
// watcher, to the configured sinks.
func (s *Service) Notify(event *dto.WSEvent) {
	if ref := s.notifier.Load(); ref != nil && ref.Notifier != nil {
		ref.Notifier.Notify(event)
	}
}
