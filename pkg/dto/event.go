package dto

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent types.
const (
	EventPersonCreated     = "person_created"
	EventPersonUpdated     = "person_updated"
	EventPersonDeleted     = "person_deleted"
	EventEvidenceAdded     = "evidence_added"
	EventEvidenceRemoved   = "evidence_removed"
	EventEvidenceRenamed   = "evidence_renamed"
	EventArchiveExported   = "archive_exported"
	EventArchiveImported   = "archive_imported"
	EventRepositoryChanged = "repository_changed"
	EventJobProgress       = "job_progress"
	EventJobFinished       = "job_finished"
)

// WSEvent is a catalog change or job update pushed to WebSocket clients and
// published to NATS.
type WSEvent struct {
	Type      string     `json:"type"`
	PersonID  *uuid.UUID `json:"person_id,omitempty"`
	JobID     string     `json:"job_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	Data      any        `json:"data,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, personID uuid.UUID, data any) *WSEvent {
	ev := &WSEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if personID != uuid.Nil {
		ev.PersonID = &personID
	}
	return ev
}

// JobProgress is the Data of a job_progress event.
type JobProgress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}
