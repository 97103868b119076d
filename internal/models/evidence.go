package models

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type EvidenceType string

const (
	EvidenceImage    EvidenceType = "image"
	EvidenceAudio    EvidenceType = "audio"
	EvidenceVideo    EvidenceType = "video"
	EvidenceDocument EvidenceType = "document"
	EvidenceQuote    EvidenceType = "quote"
)

// EvidenceTypes lists every kind in scan order.
var EvidenceTypes = []EvidenceType{
	EvidenceImage,
	EvidenceAudio,
	EvidenceVideo,
	EvidenceDocument,
	EvidenceQuote,
}

var folderNames = map[EvidenceType]string{
	EvidenceImage:    "images",
	EvidenceAudio:    "audio",
	EvidenceVideo:    "videos",
	EvidenceDocument: "documents",
	EvidenceQuote:    "quotes",
}

// Allowed extensions per kind, lower case without the dot. Quote evidence holds
// transcripts, so it takes the text-like document formats.
var allowedExtensions = map[EvidenceType][]string{
	EvidenceImage:    {"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"},
	EvidenceAudio:    {"mp3", "wav", "flac", "aac", "ogg", "m4a"},
	EvidenceVideo:    {"mp4", "avi", "mov", "wmv", "flv", "webm", "mkv"},
	EvidenceDocument: {"pdf", "doc", "docx", "txt", "rtf"},
	EvidenceQuote:    {"txt", "rtf", "pdf", "doc", "docx"},
}

// ParseEvidenceType accepts the canonical kind names case-insensitively.
func ParseEvidenceType(s string) (EvidenceType, bool) {
	t := EvidenceType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := folderNames[t]
	return t, ok
}

// EvidenceTypeForFolder maps a subfolder name back to its kind.
func EvidenceTypeForFolder(folder string) (EvidenceType, bool) {
	for t, name := range folderNames {
		if name == folder {
			return t, true
		}
	}
	return "", false
}

// EvidenceTypeFromExtension guesses the kind of a file from its extension.
// Quote is never guessed.
func EvidenceTypeFromExtension(name string) (EvidenceType, bool) {
	ext := extension(name)
	for _, t := range []EvidenceType{EvidenceImage, EvidenceAudio, EvidenceVideo, EvidenceDocument} {
		if slices.Contains(allowedExtensions[t], ext) {
			return t, true
		}
	}
	return "", false
}

func (t EvidenceType) Folder() string {
	return folderNames[t]
}

// Allows reports whether a file name carries an extension accepted for t.
func (t EvidenceType) Allows(name string) bool {
	return slices.Contains(allowedExtensions[t], extension(name))
}

func (t EvidenceType) Extensions() []string {
	return slices.Clone(allowedExtensions[t])
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// EvidenceFile describes one file found under a person's typed subfolders. It is
// derived from the filesystem and never stored in person_data.json.
type EvidenceFile struct {
	OriginalName string       `json:"original_name"`
	FileType     EvidenceType `json:"file_type"`
	Size         int64        `json:"size"`
	CreatedAt    time.Time    `json:"created_at"`
	StoredPath   string       `json:"stored_path"`
	MimeType     string       `json:"mime_type,omitempty"`
}
