// Package archive reads and writes .ema archives: zip containers whose root
// entries are person folders shaped exactly like repository folders.
package archive

import (
	"encoding/json"
	"time"

	"github.com/your-org/ema/internal/models"
)

const (
	// Extension is the conventional archive file suffix.
	Extension = ".ema"

	// ManifestFile is the optional root-level descriptor written by Export.
	ManifestFile = "metadata.json"

	FormatVersion = "1.0"

	ExportSinglePerson = "single_person"
	ExportCollection   = "collection"

	maxMetadataBytes = 32 << 20
)

// Manifest describes an archive as a whole. Archives without one are valid.
type Manifest struct {
	FormatVersion string    `json:"format_version"`
	ExportType    string    `json:"export_type"`
	ExportedAt    time.Time `json:"exported_at"`
	PersonCount   int       `json:"person_count"`
}

func (m *Manifest) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Progress is called after each unit of work with the number of units done and
// the total.
type Progress func(done, total int)

func (p Progress) report(done, total int) {
	if p != nil {
		p(done, total)
	}
}

// Source is one person folder selected for export.
type Source struct {
	// Folder is the folder name used inside the archive.
	Folder string
	// Dir is the absolute path of the person folder on disk.
	Dir string
}

// StagedFile is an evidence file extracted from an archive, waiting to be
// copied into the repository.
type StagedFile struct {
	Type models.EvidenceType
	Name string
	Path string
	Size int64
}

// PersonBundle is one parsed person folder of an archive.
type PersonBundle struct {
	Person   *models.Person
	Folder   string
	Evidence []StagedFile
}

// SkippedEntry is a root entry of an archive that could not be parsed as a
// person folder.
type SkippedEntry struct {
	Folder string `json:"folder"`
	Reason string `json:"reason"`
}
