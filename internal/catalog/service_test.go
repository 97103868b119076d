package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/pkg/dto"
)

type recorder struct {
	mu     sync.Mutex
	events []*dto.WSEvent
}

func (r *recorder) Notify(ev *dto.WSEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	if opts.StagingDir == "" {
		opts.StagingDir = t.TempDir()
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	return s
}

func TestAddPersonThenList(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newService(t, Options{Notifier: rec})

	p, err := s.AddPerson(ctx, "Jane Doe")
	require.NoError(t, err)

	persons, err := s.ListPersons(ctx, "")
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, p.ID, persons[0].ID)

	files, err := s.ScanEvidence(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, []string{dto.EventPersonCreated}, rec.types())

	// A fresh service over the same root sees the same person.
	reopened := newService(t, Options{Root: s.Root()})
	got, err := reopened.GetPerson(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestListPersonsFilter(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	for _, name := range []string{"Jane Doe", "John Smith", "jane roe"} {
		_, err := s.AddPerson(ctx, name)
		require.NoError(t, err)
	}

	names := func(query string) []string {
		persons, err := s.ListPersons(ctx, query)
		require.NoError(t, err)
		var out []string
		for _, p := range persons {
			out = append(out, p.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Jane Doe", "jane roe", "John Smith"}, names(""))
	assert.Equal(t, []string{"Jane Doe", "jane roe"}, names("JANE"))
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, names("j* [ds]*"))
	assert.Empty(t, names("nobody"))

	_, err := s.ListPersons(ctx, "[")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestInformationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	phone, err := s.AddInformation(ctx, p.ID, "Phone", "555")
	require.NoError(t, err)
	addr, err := s.AddInformation(ctx, p.ID, "Address", "12 Elm St")
	require.NoError(t, err)

	before, err := s.GetPerson(p.ID)
	require.NoError(t, err)

	require.NoError(t, s.RemoveInformation(ctx, p.ID, uuid.New()))
	after, err := s.GetPerson(p.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Information, after.Information)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	require.NoError(t, s.UpdateInformation(ctx, p.ID, addr.ID, "Address", "14 Oak Ave"))
	err = s.UpdateInformation(ctx, p.ID, uuid.New(), "Address", "x")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	require.NoError(t, s.RemoveInformation(ctx, p.ID, phone.ID))
	got, err := s.GetPerson(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Information, 1)
	assert.Equal(t, "14 Oak Ave", got.Information[0].Value)

	_, err = s.AddInformation(ctx, p.ID, " ", "x")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	_, err = s.AddInformation(ctx, uuid.New(), "Phone", "1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestQuotes(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	place := "Paris"
	q, err := s.AddQuote(ctx, p.ID, QuoteInput{Quote: "hello", Date: "2024-05-01", Place: &place})
	require.NoError(t, err)
	assert.Equal(t, p.ID, q.PersonID)
	assert.Nil(t, q.Time)

	undated, err := s.AddQuote(ctx, p.ID, QuoteInput{Quote: "later"})
	require.NoError(t, err)
	assert.NotEmpty(t, undated.Date)

	require.NoError(t, s.RemoveQuote(ctx, p.ID, uuid.New()))
	require.NoError(t, s.RemoveQuote(ctx, p.ID, q.ID))

	got, err := s.GetPerson(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Quotes, 1)
	assert.Equal(t, "later", got.Quotes[0].Quote)
}

func TestUpdatePersonKeepsFolder(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	p, err := s.AddPerson(ctx, "Jane Doe")
	require.NoError(t, err)

	name, notes := "Jane Smith", "met in 2019"
	tags := []string{"witness", " witness ", "", "family"}
	got, err := s.UpdatePerson(ctx, p.ID, PersonUpdate{Name: &name, Notes: &notes, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", got.Name)
	assert.Equal(t, []string{"witness", "family"}, got.Tags)

	folder, err := s.Folder(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane_Doe", folder)

	blank := "  "
	_, err = s.UpdatePerson(ctx, p.ID, PersonUpdate{Name: &blank})
	assert.True(t, apperr.Is(err, apperr.InvalidName))
}

func TestEvidenceCommands(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newService(t, Options{Notifier: rec})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4"), 0o644))
	ef, err := s.AddEvidence(ctx, p.ID, src, models.EvidenceDocument)
	require.NoError(t, err)
	assert.Equal(t, "documents/scan.pdf", ef.StoredPath)

	_, err = s.AddEvidenceReader(ctx, p.ID, "voice.mp3", strings.NewReader("ID3"), models.EvidenceAudio)
	require.NoError(t, err)

	_, err = s.AddEvidence(ctx, p.ID, src, models.EvidenceImage)
	assert.True(t, apperr.Is(err, apperr.UnsupportedFileType))

	renamed, err := s.RenameEvidence(ctx, p.ID, "documents/scan.pdf", "statement.pdf")
	require.NoError(t, err)
	abs, err := s.EvidencePath(p.ID, renamed.StoredPath)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.DeleteEvidence(ctx, p.ID, "audio/voice.mp3"))
	files, err := s.ScanEvidence(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "statement.pdf", files[0].OriginalName)

	assert.Equal(t, []string{
		dto.EventPersonCreated,
		dto.EventEvidenceAdded,
		dto.EventEvidenceAdded,
		dto.EventEvidenceRenamed,
		dto.EventEvidenceRemoved,
	}, rec.types())
}

func TestEvidenceChangesRevertWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newService(t, Options{Notifier: rec})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)
	_, err = s.AddEvidenceReader(ctx, p.ID, "a.jpg", strings.NewReader("a"), models.EvidenceImage)
	require.NoError(t, err)

	before, err := s.GetPerson(p.ID)
	require.NoError(t, err)
	abs, err := s.EvidencePath(p.ID, "images/a.jpg")
	require.NoError(t, err)
	imagesDir := filepath.Dir(abs)

	// A directory in place of the metadata file makes every save fail.
	meta := filepath.Join(filepath.Dir(imagesDir), storage.MetadataFile)
	require.NoError(t, os.Remove(meta))
	require.NoError(t, os.MkdirAll(filepath.Join(meta, "blocker"), 0o755))

	_, err = s.AddEvidenceReader(ctx, p.ID, "b.jpg", strings.NewReader("b"), models.EvidenceImage)
	require.Error(t, err)
	_, err = s.RenameEvidence(ctx, p.ID, "images/a.jpg", "c.jpg")
	require.Error(t, err)
	require.Error(t, s.DeleteEvidence(ctx, p.ID, "images/a.jpg"))

	entries, err := os.ReadDir(imagesDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jpg", entries[0].Name())
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	after, err := s.GetPerson(p.ID)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, []string{dto.EventPersonCreated, dto.EventEvidenceAdded}, rec.types())
}

func TestDeletePerson(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	require.NoError(t, s.DeletePerson(ctx, p.ID))
	_, err = s.GetPerson(p.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.True(t, apperr.Is(s.DeletePerson(ctx, p.ID), apperr.NotFound))
}

// contentOf is the observable content of a repository, without ids or timestamps.
type contentOf struct {
	Name        string
	Information []models.InformationKey
	Quotes      []models.QuoteKey
	Evidence    []string
}

func snapshot(t *testing.T, s *Service) []contentOf {
	t.Helper()
	ctx := context.Background()
	persons, err := s.ListPersons(ctx, "")
	require.NoError(t, err)

	var out []contentOf
	for _, p := range persons {
		c := contentOf{Name: p.Name}
		for _, e := range p.Information {
			c.Information = append(c.Information, e.Key())
		}
		for _, q := range p.Quotes {
			c.Quotes = append(c.Quotes, q.Key())
		}
		files, err := s.ScanEvidence(ctx, p.ID)
		require.NoError(t, err)
		for _, f := range files {
			c.Evidence = append(c.Evidence, f.StoredPath)
		}
		out = append(out, c)
	}
	return out
}

func seed(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	jane, err := s.AddPerson(ctx, "Jane Doe")
	require.NoError(t, err)
	_, err = s.AddInformation(ctx, jane.ID, "Address", "12 Elm St")
	require.NoError(t, err)
	tm := "09:30"
	_, err = s.AddQuote(ctx, jane.ID, QuoteInput{Quote: "I saw it", Date: "2024-01-02", Time: &tm})
	require.NoError(t, err)
	_, err = s.AddEvidenceReader(ctx, jane.ID, "photo.jpg", strings.NewReader("jpeg"), models.EvidenceImage)
	require.NoError(t, err)

	john, err := s.AddPerson(ctx, "John")
	require.NoError(t, err)
	_, err = s.AddEvidenceReader(ctx, john.ID, "note.txt", strings.NewReader("text"), models.EvidenceQuote)
	require.NoError(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newService(t, Options{MatchByName: true})
	seed(t, src)

	dest := filepath.Join(t.TempDir(), "all")
	var stages []string
	res, err := src.Export(ctx, ExportRequest{Destination: dest}, func(stage string, done, total int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)
	assert.Equal(t, dest+".ema", res.Path)
	assert.Equal(t, 2, res.Persons)
	assert.Equal(t, []string{StageExport, StageExport}, stages)

	dst := newService(t, Options{MatchByName: true})
	report, err := dst.Import(ctx, ImportRequest{Path: res.Path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PersonsCreated)
	assert.False(t, report.Partial())

	if diff := cmp.Diff(snapshot(t, src), snapshot(t, dst), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-src +dst):\n%s", diff)
	}

	again, err := dst.Import(ctx, ImportRequest{Path: res.Path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Added())
	assert.Equal(t, 2, again.PersonsMerged)
}

func TestProgressCanNotifyThroughService(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newService(t, Options{MatchByName: true, Notifier: rec})
	seed(t, s)

	progress := func(stage string, done, total int) {
		s.Notify(&dto.WSEvent{Type: dto.EventJobProgress, Data: dto.JobProgress{Stage: stage, Done: done, Total: total}})
	}

	dest := filepath.Join(t.TempDir(), "all.ema")
	done := make(chan error, 1)
	go func() {
		res, err := s.Export(ctx, ExportRequest{Destination: dest}, progress)
		if err == nil {
			_, err = s.Import(ctx, ImportRequest{Path: res.Path}, progress)
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("export and import did not finish")
	}
	assert.Contains(t, rec.types(), dto.EventJobProgress)
	assert.Contains(t, rec.types(), dto.EventArchiveImported)
}

func TestExportSelectedPersons(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	seed(t, s)
	persons, err := s.ListPersons(ctx, "john")
	require.NoError(t, err)
	require.Len(t, persons, 1)

	res, err := s.Export(ctx, ExportRequest{PersonIDs: []uuid.UUID{persons[0].ID}, Destination: filepath.Join(t.TempDir(), "john.ema")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Persons)

	_, err = s.Export(ctx, ExportRequest{PersonIDs: []uuid.UUID{uuid.New()}, Destination: filepath.Join(t.TempDir(), "x.ema")}, nil)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = s.Export(ctx, ExportRequest{Destination: filepath.Join(t.TempDir(), "x.ema"), Mirror: true}, nil)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestImportMissingArchive(t *testing.T) {
	s := newService(t, Options{})
	_, err := s.Import(context.Background(), ImportRequest{Path: filepath.Join(t.TempDir(), "none.ema")}, nil)
	assert.True(t, apperr.Is(err, apperr.SourceNotFound))

	_, err = s.Import(context.Background(), ImportRequest{}, nil)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestJaneDoeDeletedAndRestored(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{MatchByName: true})
	jane, err := s.AddPerson(ctx, "Jane Doe")
	require.NoError(t, err)
	_, err = s.AddInformation(ctx, jane.ID, "Address", "12 Elm St")
	require.NoError(t, err)

	res, err := s.Export(ctx, ExportRequest{Destination: filepath.Join(t.TempDir(), "a.ema")}, nil)
	require.NoError(t, err)
	require.NoError(t, s.DeletePerson(ctx, jane.ID))

	_, err = s.Import(ctx, ImportRequest{Path: res.Path}, nil)
	require.NoError(t, err)

	persons, err := s.ListPersons(ctx, "")
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "Jane Doe", persons[0].Name)
	require.Len(t, persons[0].Information, 1)
	assert.Equal(t, "12 Elm St", persons[0].Information[0].Value)
}

type fakeMirror struct {
	dir string
}

func (m *fakeMirror) Upload(_ context.Context, localPath string) (string, error) {
	key := "archives/" + filepath.Base(localPath)
	return key, copyFile(localPath, filepath.Join(m.dir, filepath.Base(key)))
}

func (m *fakeMirror) Download(_ context.Context, key, destPath string) error {
	return copyFile(filepath.Join(m.dir, filepath.Base(key)), destPath)
}

func (m *fakeMirror) List(context.Context) ([]storage.RemoteArchive, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []storage.RemoteArchive
	for _, e := range entries {
		out = append(out, storage.RemoteArchive{Key: "archives/" + e.Name()})
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func TestMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{dir: t.TempDir()}
	src := newService(t, Options{Mirror: mirror})
	seed(t, src)

	res, err := src.Export(ctx, ExportRequest{Destination: filepath.Join(t.TempDir(), "m.ema"), Mirror: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "archives/m.ema", res.ObjectKey)

	remote, err := src.RemoteArchives(ctx)
	require.NoError(t, err)
	require.Len(t, remote, 1)

	dst := newService(t, Options{Mirror: mirror})
	report, err := dst.Import(ctx, ImportRequest{ObjectKey: res.ObjectKey}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PersonsCreated)
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	_, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	other, err := storage.NewPersonStore(s.Root(), 1)
	require.NoError(t, err)
	_, _, err = other.LoadAll(ctx)
	require.NoError(t, err)
	_, err = other.Create(ctx, "John")
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "Broken"), 0o755))

	warnings, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Len(t, s.Warnings(), 1)

	persons, err := s.ListPersons(ctx, "")
	require.NoError(t, err)
	assert.Len(t, persons, 2)
}

func TestRefreshReportsChanges(t *testing.T) {
	ctx := context.Background()
	s := newService(t, Options{})
	p, err := s.AddPerson(ctx, "Jane")
	require.NoError(t, err)

	changed, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "own writes are already cached")

	other, err := storage.NewPersonStore(s.Root(), 1)
	require.NoError(t, err)
	_, _, err = other.LoadAll(ctx)
	require.NoError(t, err)
	stored, err := other.Get(p.ID)
	require.NoError(t, err)
	stored.Name = "Jane Smith"
	stored.Touch()
	require.NoError(t, other.Save(stored))

	changed, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
}
