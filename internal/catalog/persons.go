package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/pkg/dto"
)

// PersonUpdate carries the fields to change; nil fields are left alone.
type PersonUpdate struct {
	Name  *string
	Notes *string
	Tags  *[]string
}

// QuoteInput is a new quote. An empty Date means today.
type QuoteInput struct {
	Quote string
	Date  string
	Time  *string
	Place *string
}

// ListPersons returns persons ordered by name. A non-empty query filters by
// case-insensitive substring of the name, or as a glob pattern when it contains
// any of * ? [ {.
func (s *Service) ListPersons(ctx context.Context, query string) ([]*models.Person, error) {
	match, err := nameMatcher(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Person
	for _, p := range s.sortedLocked() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if match(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func nameMatcher(query string) (func(*models.Person) bool, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return func(*models.Person) bool { return true }, nil
	}
	if strings.ContainsAny(query, "*?[{") {
		g, err := glob.Compile(query)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "invalid name pattern", err)
		}
		return func(p *models.Person) bool { return g.Match(strings.ToLower(p.Name)) }, nil
	}
	return func(p *models.Person) bool { return strings.Contains(strings.ToLower(p.Name), query) }, nil
}

func (s *Service) GetPerson(id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.personLocked(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *Service) personLocked(id uuid.UUID) (*models.Person, error) {
	p, ok := s.cache[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "person %s not found", id)
	}
	return p, nil
}

// AddPerson creates a new empty person.
func (s *Service) AddPerson(ctx context.Context, name string) (p *models.Person, err error) {
	defer func() { observability.ObserveMutation("add_person", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.persons.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache[p.ID] = p
	observability.PersonsTotal.Set(float64(len(s.cache)))
	s.notify(dto.EventPersonCreated, p.ID, p.Name)
	return p.Clone(), nil
}

// UpdatePerson changes name, notes or tags. A new name never moves the folder.
func (s *Service) UpdatePerson(ctx context.Context, id uuid.UUID, upd PersonUpdate) (p *models.Person, err error) {
	defer func() { observability.ObserveMutation("update_person", err) }()

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if _, err := storage.SanitizeName(name); err != nil {
			return nil, err
		}
		upd.Name = &name
	}

	return s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		if upd.Name != nil {
			p.Name = *upd.Name
		}
		if upd.Notes != nil {
			p.Notes = *upd.Notes
		}
		if upd.Tags != nil {
			p.Tags = normalizeTags(*upd.Tags)
		}
		p.Touch()
		return true, nil
	})
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// DeletePerson removes a person with all evidence.
func (s *Service) DeletePerson(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { observability.ObserveMutation("delete_person", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.personLocked(id); err != nil {
		return err
	}
	if err := s.persons.Delete(id); err != nil {
		return err
	}
	delete(s.cache, id)
	observability.PersonsTotal.Set(float64(len(s.cache)))
	s.notify(dto.EventPersonDeleted, id, nil)
	return nil
}

func (s *Service) AddInformation(ctx context.Context, id uuid.UUID, infoType, value string) (entry models.InformationEntry, err error) {
	defer func() { observability.ObserveMutation("add_information", err) }()

	infoType, value = strings.TrimSpace(infoType), strings.TrimSpace(value)
	if infoType == "" || value == "" {
		return entry, apperr.New(apperr.InvalidInput, "info_type and value are required")
	}
	_, err = s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		entry = p.AddInformation(infoType, value)
		return true, nil
	})
	return entry, err
}

func (s *Service) UpdateInformation(ctx context.Context, id, infoID uuid.UUID, infoType, value string) (err error) {
	defer func() { observability.ObserveMutation("update_information", err) }()

	infoType, value = strings.TrimSpace(infoType), strings.TrimSpace(value)
	if infoType == "" || value == "" {
		return apperr.New(apperr.InvalidInput, "info_type and value are required")
	}
	_, err = s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		if !p.UpdateInformation(infoID, infoType, value) {
			return false, apperr.Newf(apperr.NotFound, "information %s not found", infoID)
		}
		return true, nil
	})
	return err
}

// RemoveInformation deletes an entry. An unknown entry id is not an error.
func (s *Service) RemoveInformation(ctx context.Context, id, infoID uuid.UUID) (err error) {
	defer func() { observability.ObserveMutation("remove_information", err) }()

	_, err = s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		return p.RemoveInformation(infoID), nil
	})
	return err
}

func (s *Service) AddQuote(ctx context.Context, id uuid.UUID, in QuoteInput) (entry models.QuoteEntry, err error) {
	defer func() { observability.ObserveMutation("add_quote", err) }()

	in.Quote = strings.TrimSpace(in.Quote)
	if in.Quote == "" {
		return entry, apperr.New(apperr.InvalidInput, "quote text is required")
	}
	if strings.TrimSpace(in.Date) == "" {
		in.Date = time.Now().Format(time.DateOnly)
	}
	_, err = s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		entry = p.AddQuote(in.Quote, in.Date, in.Time, in.Place)
		return true, nil
	})
	return entry, err
}

// RemoveQuote deletes a quote. An unknown quote id is not an error.
func (s *Service) RemoveQuote(ctx context.Context, id, quoteID uuid.UUID) (err error) {
	defer func() { observability.ObserveMutation("remove_quote", err) }()

	_, err = s.mutate(ctx, id, dto.EventPersonUpdated, func(p *models.Person) (bool, error) {
		return p.RemoveQuote(quoteID), nil
	})
	return err
}

// mutate applies fn to a copy of the person and persists it when fn reports a
// change. The cached record is replaced only after a successful save.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, event string, fn func(*models.Person) (bool, error)) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, err := s.personLocked(id)
	if err != nil {
		return nil, err
	}

	p := current.Clone()
	changed, err := fn(p)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current.Clone(), nil
	}
	if err := s.persons.Save(p); err != nil {
		return nil, err
	}
	s.cache[id] = p
	s.notify(event, id, nil)
	return p.Clone(), nil
}
