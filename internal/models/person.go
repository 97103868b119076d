package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is the content of a person folder's person_data.json.
type Person struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Notes       string             `json:"notes,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Information []InformationEntry `json:"information"`
	Quotes      []QuoteEntry       `json:"quotes"`
}

// InformationEntry is one free-form typed fact about a person. Several entries
// may share an InfoType.
type InformationEntry struct {
	ID        uuid.UUID `json:"id"`
	InfoType  string    `json:"info_type"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type QuoteEntry struct {
	ID        uuid.UUID `json:"id"`
	PersonID  uuid.UUID `json:"person_id,omitzero"`
	Quote     string    `json:"quote"`
	Date      string    `json:"date"`
	Time      *string   `json:"time"`
	Place     *string   `json:"place"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// NewPerson returns an empty person with a fresh id and UTC timestamps.
func NewPerson(name string) *Person {
	now := time.Now().UTC()
	return &Person{
		ID:          uuid.New(),
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
		Information: []InformationEntry{},
		Quotes:      []QuoteEntry{},
	}
}

// Touch refreshes UpdatedAt.
func (p *Person) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers never share slices with a stored record.
func (p *Person) Clone() *Person {
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	c.Information = append([]InformationEntry{}, p.Information...)
	c.Quotes = make([]QuoteEntry, len(p.Quotes))
	for i, q := range p.Quotes {
		c.Quotes[i] = q
		c.Quotes[i].Time = cloneString(q.Time)
		c.Quotes[i].Place = cloneString(q.Place)
	}
	return &c
}

// Normalize replaces nil collections with empty ones so the JSON form always
// carries arrays.
func (p *Person) Normalize() {
	if p.Information == nil {
		p.Information = []InformationEntry{}
	}
	if p.Quotes == nil {
		p.Quotes = []QuoteEntry{}
	}
}

func (p *Person) AddInformation(infoType, value string) InformationEntry {
	entry := InformationEntry{
		ID:        uuid.New(),
		InfoType:  infoType,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	p.Information = append(p.Information, entry)
	p.Touch()
	return entry
}

// UpdateInformation edits an entry in place. It reports false if the id is unknown.
func (p *Person) UpdateInformation(id uuid.UUID, infoType, value string) bool {
	for i := range p.Information {
		if p.Information[i].ID == id {
			p.Information[i].InfoType = infoType
			p.Information[i].Value = value
			p.Touch()
			return true
		}
	}
	return false
}

// RemoveInformation drops the entry with the given id. Unknown ids are a no-op.
func (p *Person) RemoveInformation(id uuid.UUID) bool {
	for i := range p.Information {
		if p.Information[i].ID == id {
			p.Information = append(p.Information[:i], p.Information[i+1:]...)
			p.Touch()
			return true
		}
	}
	return false
}

func (p *Person) AddQuote(quote, date string, tm, place *string) QuoteEntry {
	entry := QuoteEntry{
		ID:        uuid.New(),
		PersonID:  p.ID,
		Quote:     quote,
		Date:      date,
		Time:      cloneString(tm),
		Place:     cloneString(place),
		CreatedAt: time.Now().UTC(),
	}
	p.Quotes = append(p.Quotes, entry)
	p.Touch()
	return entry
}

// RemoveQuote drops the quote with the given id. Unknown ids are a no-op.
func (p *Person) RemoveQuote(id uuid.UUID) bool {
	for i := range p.Quotes {
		if p.Quotes[i].ID == id {
			p.Quotes = append(p.Quotes[:i], p.Quotes[i+1:]...)
			p.Touch()
			return true
		}
	}
	return false
}

// InformationKey is the merge identity of an information entry.
type InformationKey struct {
	InfoType string
	Value    string
}

func (e InformationEntry) Key() InformationKey {
	return InformationKey{InfoType: e.InfoType, Value: e.Value}
}

// QuoteKey is the merge identity of a quote. A nil time or place equals "".
type QuoteKey struct {
	Quote string
	Date  string
	Time  string
	Place string
}

func (q QuoteEntry) Key() QuoteKey {
	return QuoteKey{Quote: q.Quote, Date: q.Date, Time: deref(q.Time), Place: deref(q.Place)}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
