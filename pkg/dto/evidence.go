package dto

import (
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/your-org/ema/internal/models"
)

type EvidenceResponse struct {
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	Size         int64  `json:"size"`
	SizeHuman    string `json:"size_human"`
	MimeType     string `json:"mime_type,omitempty"`
	StoredPath   string `json:"stored_path"`
	CreatedAt    string `json:"created_at"`
}

type EvidenceListResponse struct {
	Evidence []EvidenceResponse `json:"evidence"`
	Total    int                `json:"total"`
}

// AddEvidenceRequest ingests a file that is already on the server's filesystem.
type AddEvidenceRequest struct {
	SourcePath   string `json:"source_path" binding:"required"`
	EvidenceType string `json:"evidence_type" binding:"required"`
}

type RenameEvidenceRequest struct {
	StoredPath string `json:"stored_path" binding:"required"`
	NewName    string `json:"new_name" binding:"required"`
}

type EvidencePathQuery struct {
	Path string `form:"path" binding:"required"`
}

func NewEvidenceResponse(ef models.EvidenceFile) EvidenceResponse {
	return EvidenceResponse{
		OriginalName: ef.OriginalName,
		FileType:     string(ef.FileType),
		Size:         ef.Size,
		SizeHuman:    humanize.Bytes(uint64(ef.Size)),
		MimeType:     ef.MimeType,
		StoredPath:   ef.StoredPath,
		CreatedAt:    ef.CreatedAt.Format(time.RFC3339),
	}
}
