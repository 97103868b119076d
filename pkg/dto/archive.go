package dto

import "github.com/google/uuid"

type ExportRequest struct {
	// PersonIDs selects persons to export; empty exports the whole repository.
	PersonIDs   []uuid.UUID `json:"person_ids"`
	Destination string      `json:"destination" binding:"required"`
	Mirror      bool        `json:"mirror"`
}

// ImportRequest names a local archive path or a mirrored object key.
type ImportRequest struct {
	Path      string `json:"path"`
	ObjectKey string `json:"object_key"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Stage      string `json:"stage,omitempty"`
	Done       int    `json:"done"`
	Total      int    `json:"total"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}
