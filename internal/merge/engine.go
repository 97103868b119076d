// Package merge reconciles staged archive bundles with the live repository.
package merge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/archive"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
)

// PersonWriter creates and persists person records.
type PersonWriter interface {
	CreateFrom(ctx context.Context, tmpl *models.Person) (*models.Person, error)
	Save(p *models.Person) error
}

// EvidenceWriter stores evidence files of a person.
type EvidenceWriter interface {
	Contains(personID uuid.UUID, kind models.EvidenceType, name string, size int64) (bool, error)
	IngestReader(ctx context.Context, personID uuid.UUID, name string, r io.Reader, kind models.EvidenceType) (*models.EvidenceFile, error)
}

type Engine struct {
	persons     PersonWriter
	evidence    EvidenceWriter
	matchByName bool
}

// NewEngine returns an engine writing through persons and evidence. With
// matchByName, a bundle whose id is unknown merges into an existing person
// with exactly the same name that no other bundle of the import has taken.
func NewEngine(persons PersonWriter, evidence EvidenceWriter, matchByName bool) *Engine {
	return &Engine{persons: persons, evidence: evidence, matchByName: matchByName}
}

// workingSet indexes the repository as it evolves during one import. Only
// persons that existed before the import are candidates for the name fallback,
// and each of them can be claimed by at most one bundle.
type workingSet struct {
	byID    map[uuid.UUID]*models.Person
	byName  map[string][]uuid.UUID
	claimed map[uuid.UUID]bool
}

func newWorkingSet(existing []*models.Person) *workingSet {
	ws := &workingSet{
		byID:    make(map[uuid.UUID]*models.Person, len(existing)),
		byName:  make(map[string][]uuid.UUID),
		claimed: make(map[uuid.UUID]bool),
	}
	for _, p := range existing {
		ws.byID[p.ID] = p
		ws.byName[p.Name] = append(ws.byName[p.Name], p.ID)
	}
	return ws
}

// put records p under key, which is its own id or the id it carried in the
// archive.
func (ws *workingSet) put(key uuid.UUID, p *models.Person) {
	ws.byID[key] = p
	ws.claimed[p.ID] = true
}

func (ws *workingSet) match(incoming *models.Person, byName bool) *models.Person {
	if incoming.ID != uuid.Nil {
		if p, ok := ws.byID[incoming.ID]; ok {
			return p
		}
	}
	if !byName {
		return nil
	}

	// Among unclaimed namesakes prefer the one sharing the most entries with
	// the bundle, so a repeated import lands on the same persons again.
	var (
		best      *models.Person
		bestScore = -1
	)
	for _, id := range ws.byName[incoming.Name] {
		if ws.claimed[id] {
			continue
		}
		p := ws.byID[id]
		if score := overlap(p, incoming); score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

func overlap(p, incoming *models.Person) int {
	info := make(map[models.InformationKey]bool, len(p.Information))
	for _, e := range p.Information {
		info[e.Key()] = true
	}
	quotes := make(map[models.QuoteKey]bool, len(p.Quotes))
	for _, q := range p.Quotes {
		quotes[q.Key()] = true
	}

	n := 0
	for _, e := range incoming.Information {
		if info[e.Key()] {
			n++
		}
	}
	for _, q := range incoming.Quotes {
		if quotes[q.Key()] {
			n++
		}
	}
	return n
}

// Merge applies every bundle of staged to the repository whose current persons
// are existing. Failures are isolated per folder and recorded in the report;
// the returned error is non-nil only when ctx is cancelled, in which case the
// report covers the bundles processed so far.
//
// A merged person's updated_at moves only when the merge added information,
// quotes or evidence. A merge that adds nothing leaves the record untouched
// on disk.
func (e *Engine) Merge(ctx context.Context, existing []*models.Person, staged *archive.Staged, progress archive.Progress) (*Report, error) {
	report := newReport()
	report.Skipped = append(report.Skipped, staged.Skipped...)

	ws := newWorkingSet(existing)
	total := len(staged.Bundles)
	for i, bundle := range staged.Bundles {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if target := ws.match(bundle.Person, e.matchByName); target != nil {
			e.mergeInto(ctx, target, bundle, ws, report)
		} else {
			e.create(ctx, bundle, ws, report)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return report, nil
}

func (e *Engine) create(ctx context.Context, bundle archive.PersonBundle, ws *workingSet, report *Report) {
	created, err := e.persons.CreateFrom(ctx, bundle.Person)
	if err != nil {
		slog.Warn("import: create person failed", "folder", bundle.Folder, "error", err)
		report.fail(bundle.Folder, "", err)
		return
	}

	report.PersonsCreated++
	report.InformationAdded += len(created.Information)
	report.QuotesAdded += len(created.Quotes)
	observability.ArchiveEntries.WithLabelValues("import", "information", "added").Add(float64(len(created.Information)))
	observability.ArchiveEntries.WithLabelValues("import", "quote", "added").Add(float64(len(created.Quotes)))
	report.Persons = append(report.Persons, PersonOutcome{
		Folder: bundle.Folder, PersonID: created.ID, Name: created.Name, Action: ActionCreated,
	})

	ws.put(created.ID, created)
	if bundle.Person.ID != uuid.Nil {
		ws.put(bundle.Person.ID, created)
	}
	e.copyEvidence(ctx, created.ID, bundle, report)
}

func (e *Engine) mergeInto(ctx context.Context, target *models.Person, bundle archive.PersonBundle, ws *workingSet, report *Report) {
	merged := target.Clone()
	now := time.Now().UTC()

	infoAdded, infoSkipped := mergeInformation(merged, bundle.Person.Information, now)
	quotesAdded, quotesSkipped := mergeQuotes(merged, bundle.Person.Quotes, now)

	if infoAdded+quotesAdded > 0 {
		merged.Touch()
		if err := e.persons.Save(merged); err != nil {
			slog.Warn("import: save merged person failed", "folder", bundle.Folder, "person_id", target.ID, "error", err)
			report.fail(bundle.Folder, "", err)
			return
		}
	}

	report.PersonsMerged++
	report.InformationAdded += infoAdded
	report.InformationSkipped += infoSkipped
	report.QuotesAdded += quotesAdded
	report.QuotesSkipped += quotesSkipped
	observability.ArchiveEntries.WithLabelValues("import", "information", "added").Add(float64(infoAdded))
	observability.ArchiveEntries.WithLabelValues("import", "information", "skipped").Add(float64(infoSkipped))
	observability.ArchiveEntries.WithLabelValues("import", "quote", "added").Add(float64(quotesAdded))
	observability.ArchiveEntries.WithLabelValues("import", "quote", "skipped").Add(float64(quotesSkipped))
	report.Persons = append(report.Persons, PersonOutcome{
		Folder: bundle.Folder, PersonID: merged.ID, Name: merged.Name, Action: ActionMerged,
	})

	ws.put(merged.ID, merged)
	if bundle.Person.ID != uuid.Nil {
		ws.put(bundle.Person.ID, merged)
	}

	if added := e.copyEvidence(ctx, merged.ID, bundle, report); added > 0 && infoAdded+quotesAdded == 0 {
		merged.Touch()
		if err := e.persons.Save(merged); err != nil {
			report.fail(bundle.Folder, "", err)
		}
	}
}

// mergeInformation appends entries whose (info_type, value) is not present yet.
func mergeInformation(p *models.Person, incoming []models.InformationEntry, now time.Time) (added, skipped int) {
	seen := make(map[models.InformationKey]bool, len(p.Information))
	for _, e := range p.Information {
		seen[e.Key()] = true
	}
	for _, e := range incoming {
		if seen[e.Key()] {
			skipped++
			continue
		}
		seen[e.Key()] = true
		e.ID = uuid.New()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		p.Information = append(p.Information, e)
		added++
	}
	return added, skipped
}

// mergeQuotes appends quotes whose (quote, date, time, place) is not present yet.
func mergeQuotes(p *models.Person, incoming []models.QuoteEntry, now time.Time) (added, skipped int) {
	seen := make(map[models.QuoteKey]bool, len(p.Quotes))
	for _, q := range p.Quotes {
		seen[q.Key()] = true
	}
	for _, q := range incoming {
		if seen[q.Key()] {
			skipped++
			continue
		}
		seen[q.Key()] = true
		q.ID = uuid.New()
		q.PersonID = p.ID
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		if q.Time != nil {
			t := *q.Time
			q.Time = &t
		}
		if q.Place != nil {
			pl := *q.Place
			q.Place = &pl
		}
		p.Quotes = append(p.Quotes, q)
		added++
	}
	return added, skipped
}

// copyEvidence copies staged files that are not already present by name and
// size. It returns the number of files copied.
func (e *Engine) copyEvidence(ctx context.Context, personID uuid.UUID, bundle archive.PersonBundle, report *Report) int {
	added := 0
	for _, f := range bundle.Evidence {
		present, err := e.evidence.Contains(personID, f.Type, f.Name, f.Size)
		if err != nil {
			report.fail(bundle.Folder, f.Name, err)
			continue
		}
		if present {
			report.EvidenceSkipped++
			observability.ArchiveEntries.WithLabelValues("import", string(f.Type), "skipped").Inc()
			continue
		}
		if err := e.copyOne(ctx, personID, f); err != nil {
			slog.Warn("import: copy evidence failed", "folder", bundle.Folder, "file", f.Name, "error", err)
			report.fail(bundle.Folder, f.Name, err)
			observability.ArchiveEntries.WithLabelValues("import", string(f.Type), "failed").Inc()
			continue
		}
		report.EvidenceAdded++
		added++
		observability.ArchiveEntries.WithLabelValues("import", string(f.Type), "added").Inc()
	}
	return added
}

func (e *Engine) copyOne(ctx context.Context, personID uuid.UUID, f archive.StagedFile) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return apperr.Wrap(apperr.IO, fmt.Sprintf("open staged file %s", f.Name), err)
	}
	defer src.Close()

	_, err = e.evidence.IngestReader(ctx, personID, f.Name, src, f.Type)
	return err
}
