package merge

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/archive"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/storage"
)

type repo struct {
	persons  *storage.PersonStore
	evidence *storage.EvidenceCatalog
}

func newRepo(t *testing.T) *repo {
	t.Helper()
	s, err := storage.NewPersonStore(t.TempDir(), 2)
	require.NoError(t, err)
	return &repo{persons: s, evidence: storage.NewEvidenceCatalog(s)}
}

func (r *repo) all(t *testing.T) []*models.Person {
	t.Helper()
	persons, _, err := r.persons.LoadAll(context.Background())
	require.NoError(t, err)
	return persons
}

func (r *repo) engine(matchByName bool) *Engine {
	return NewEngine(r.persons, r.evidence, matchByName)
}

// exportAll writes every person of r into an archive and stages it back.
func (r *repo) exportAll(t *testing.T) *archive.Staged {
	t.Helper()
	var sources []archive.Source
	for _, p := range r.all(t) {
		dir, err := r.persons.Dir(p.ID)
		require.NoError(t, err)
		folder, err := r.persons.Folder(p.ID)
		require.NoError(t, err)
		sources = append(sources, archive.Source{Folder: folder, Dir: dir})
	}
	dest := filepath.Join(t.TempDir(), "export"+archive.Extension)
	_, err := archive.Export(context.Background(), sources, dest, nil)
	require.NoError(t, err)

	staged, err := archive.Import(context.Background(), dest, t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { staged.Close() })
	return staged
}

func strPtr(s string) *string { return &s }

func quoteKeys(p *models.Person) []models.QuoteKey {
	keys := make([]models.QuoteKey, 0, len(p.Quotes))
	for _, q := range p.Quotes {
		keys = append(keys, q.Key())
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Quote < keys[j].Quote })
	return keys
}

func TestDeleteThenImportRestoresPerson(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	jane, err := r.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	jane.AddInformation("Address", "12 Elm St")
	require.NoError(t, r.persons.Save(jane))

	staged := r.exportAll(t)
	require.NoError(t, r.persons.Delete(jane.ID))

	report, err := r.engine(true).Merge(ctx, r.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersonsCreated)
	assert.Equal(t, 1, report.InformationAdded)
	assert.False(t, report.Partial())

	persons := r.all(t)
	require.Len(t, persons, 1)
	assert.Equal(t, "Jane Doe", persons[0].Name)
	assert.NotEqual(t, jane.ID, persons[0].ID)
	require.Len(t, persons[0].Information, 1)
	assert.Equal(t, models.InformationKey{InfoType: "Address", Value: "12 Elm St"}, persons[0].Information[0].Key())
}

func TestImportTwiceAddsNothing(t *testing.T) {
	ctx := context.Background()
	src := newRepo(t)
	jane, err := src.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	jane.AddInformation("Phone", "555")
	jane.AddQuote("hello", "2024-01-01", nil, strPtr("Paris"))
	require.NoError(t, src.persons.Save(jane))
	photo := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o644))
	_, err = src.evidence.Ingest(ctx, jane.ID, photo, models.EvidenceImage)
	require.NoError(t, err)
	staged := src.exportAll(t)

	dst := newRepo(t)
	first, err := dst.engine(true).Merge(ctx, dst.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PersonsCreated)
	assert.Equal(t, 1, first.EvidenceAdded)

	before := dst.all(t)[0]
	second, err := dst.engine(true).Merge(ctx, dst.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added())
	assert.Equal(t, 1, second.PersonsMerged)
	assert.Equal(t, 1, second.InformationSkipped)
	assert.Equal(t, 1, second.QuotesSkipped)
	assert.Equal(t, 1, second.EvidenceSkipped)

	after := dst.all(t)[0]
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "no-op merge keeps updated_at")
	files, err := dst.evidence.Scan(ctx, after.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func addresses(persons []*models.Person) []string {
	var out []string
	for _, p := range persons {
		for _, e := range p.Information {
			out = append(out, p.Name+": "+e.Value)
		}
	}
	sort.Strings(out)
	return out
}

func TestSameNamedPersonsStayDistinct(t *testing.T) {
	ctx := context.Background()
	src := newRepo(t)
	for _, addr := range []string{"12 Elm St", "9 Oak Ave"} {
		p, err := src.persons.Create(ctx, "Jane Doe")
		require.NoError(t, err)
		p.AddInformation("Address", addr)
		require.NoError(t, src.persons.Save(p))
	}
	staged := src.exportAll(t)
	want := []string{"Jane Doe: 12 Elm St", "Jane Doe: 9 Oak Ave"}

	dst := newRepo(t)
	first, err := dst.engine(true).Merge(ctx, dst.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.PersonsCreated)
	assert.Equal(t, 0, first.PersonsMerged)

	persons := dst.all(t)
	require.Len(t, persons, 2)
	for _, p := range persons {
		assert.Len(t, p.Information, 1)
	}
	if diff := cmp.Diff(want, addresses(persons)); diff != "" {
		t.Errorf("after first import (-want +got):\n%s", diff)
	}

	second, err := dst.engine(true).Merge(ctx, dst.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added())
	assert.Equal(t, 2, second.PersonsMerged)
	assert.Equal(t, 2, second.InformationSkipped)

	persons = dst.all(t)
	require.Len(t, persons, 2)
	for _, p := range persons {
		assert.Len(t, p.Information, 1)
	}
	if diff := cmp.Diff(want, addresses(persons)); diff != "" {
		t.Errorf("after second import (-want +got):\n%s", diff)
	}
}

func TestImportIntoSourceMatchesByID(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	jane, err := r.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	staged := r.exportAll(t)

	jane.Name = "Jane Smith"
	require.NoError(t, r.persons.Save(jane))

	report, err := r.engine(false).Merge(ctx, r.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersonsMerged)
	assert.Equal(t, jane.ID, report.Persons[0].PersonID)
	assert.Len(t, r.all(t), 1)
}

func TestQuotesAreUnioned(t *testing.T) {
	ctx := context.Background()

	other := newRepo(t)
	a, err := other.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	a.AddQuote("shared", "2024-01-01", strPtr("10:00"), nil)
	a.AddQuote("only in B", "2024-02-02", nil, nil)
	require.NoError(t, other.persons.Save(a))
	staged := other.exportAll(t)

	local := newRepo(t)
	b, err := local.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	b.AddQuote("shared", "2024-01-01", strPtr("10:00"), strPtr(""))
	b.AddQuote("only local", "2024-03-03", nil, nil)
	require.NoError(t, local.persons.Save(b))

	report, err := local.engine(true).Merge(ctx, local.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersonsMerged)
	assert.Equal(t, 1, report.QuotesAdded)
	assert.Equal(t, 1, report.QuotesSkipped)

	persons := local.all(t)
	require.Len(t, persons, 1)
	assert.Equal(t, b.ID, persons[0].ID)
	assert.Equal(t, b.CreatedAt, persons[0].CreatedAt)

	want := []models.QuoteKey{
		{Quote: "only in B", Date: "2024-02-02"},
		{Quote: "only local", Date: "2024-03-03"},
		{Quote: "shared", Date: "2024-01-01", Time: "10:00"},
	}
	if diff := cmp.Diff(want, quoteKeys(persons[0])); diff != "" {
		t.Errorf("quotes mismatch (-want +got):\n%s", diff)
	}
	for _, q := range persons[0].Quotes {
		assert.Equal(t, b.ID, q.PersonID)
	}
}

func TestMatchByNameDisabledCreatesSecondPerson(t *testing.T) {
	ctx := context.Background()
	other := newRepo(t)
	_, err := other.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)
	staged := other.exportAll(t)

	local := newRepo(t)
	_, err = local.persons.Create(ctx, "Jane Doe")
	require.NoError(t, err)

	report, err := local.engine(false).Merge(ctx, local.all(t), staged, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersonsCreated)
	assert.Len(t, local.all(t), 2)
}

type failingEvidence struct {
	*storage.EvidenceCatalog
}

func (failingEvidence) Contains(uuid.UUID, models.EvidenceType, string, int64) (bool, error) {
	return false, apperr.New(apperr.IO, "disk unavailable")
}

func TestFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	src := newRepo(t)
	p, err := src.persons.Create(ctx, "Jane")
	require.NoError(t, err)
	_, err = src.persons.Create(ctx, "John")
	require.NoError(t, err)
	photo := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(photo, []byte("png"), 0o644))
	_, err = src.evidence.Ingest(ctx, p.ID, photo, models.EvidenceImage)
	require.NoError(t, err)
	staged := src.exportAll(t)
	staged.Skipped = append(staged.Skipped, archive.SkippedEntry{Folder: "Broken", Reason: "person_data.json missing"})

	dst := newRepo(t)
	engine := NewEngine(dst.persons, failingEvidence{dst.evidence}, true)
	report, err := engine.Merge(ctx, nil, staged, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PersonsCreated)
	assert.True(t, report.Partial())
	assert.Equal(t, string(apperr.PartialImport), report.Status())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "a.png", report.Failures[0].File)
	assert.Equal(t, string(apperr.IO), report.Failures[0].Code)
	require.Len(t, report.Skipped, 1)
}

func TestMergeStopsOnCancel(t *testing.T) {
	src := newRepo(t)
	_, err := src.persons.Create(context.Background(), "Jane")
	require.NoError(t, err)
	staged := src.exportAll(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dst := newRepo(t)
	report, err := dst.engine(true).Merge(ctx, nil, staged, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.PersonsCreated)
	assert.Empty(t, dst.all(t))
}
