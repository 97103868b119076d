package merge

import (
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/archive"
)

const (
	ActionCreated = "created"
	ActionMerged  = "merged"
)

// Report is the outcome of one import.
type Report struct {
	PersonsCreated     int `json:"persons_created"`
	PersonsMerged      int `json:"persons_merged"`
	InformationAdded   int `json:"information_added"`
	InformationSkipped int `json:"information_skipped"`
	QuotesAdded        int `json:"quotes_added"`
	QuotesSkipped      int `json:"quotes_skipped"`
	EvidenceAdded      int `json:"evidence_added"`
	EvidenceSkipped    int `json:"evidence_skipped"`

	Persons  []PersonOutcome        `json:"persons"`
	Skipped  []archive.SkippedEntry `json:"skipped"`
	Failures []Failure              `json:"failures"`
}

// PersonOutcome records where one archive folder ended up.
type PersonOutcome struct {
	Folder   string    `json:"folder"`
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Action   string    `json:"action"`
}

// Failure is an error isolated to one archive folder or one of its files.
type Failure struct {
	Folder string `json:"folder"`
	File   string `json:"file,omitempty"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func newReport() *Report {
	return &Report{
		Persons:  []PersonOutcome{},
		Skipped:  []archive.SkippedEntry{},
		Failures: []Failure{},
	}
}

// Added is the number of new entries of any kind, including created persons.
func (r *Report) Added() int {
	return r.PersonsCreated + r.InformationAdded + r.QuotesAdded + r.EvidenceAdded
}

// Partial reports whether anything in the archive was left out.
func (r *Report) Partial() bool {
	return len(r.Skipped) > 0 || len(r.Failures) > 0
}

// Status is "OK" or PARTIAL_IMPORT.
func (r *Report) Status() string {
	if r.Partial() {
		return string(apperr.PartialImport)
	}
	return "OK"
}

func (r *Report) fail(folder, file string, err error) {
	code := apperr.CodeOf(err)
	if code == "" {
		code = apperr.IO
	}
	r.Failures = append(r.Failures, Failure{Folder: folder, File: file, Code: string(code), Reason: err.Error()})
}
