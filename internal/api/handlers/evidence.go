package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/pkg/dto"
)

type EvidenceHandler struct {
	svc *catalog.Service
}

func NewEvidenceHandler(svc *catalog.Service) *EvidenceHandler {
	return &EvidenceHandler{svc: svc}
}

func (h *EvidenceHandler) List(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	files, err := h.svc.ScanEvidence(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.EvidenceResponse, 0, len(files))
	for _, ef := range files {
		resp = append(resp, dto.NewEvidenceResponse(ef))
	}
	c.JSON(http.StatusOK, dto.EvidenceListResponse{Evidence: resp, Total: len(resp)})
}

// Add ingests either a server-side file named by a JSON body or an uploaded
// multipart "file" with an "evidence_type" form field.
func (h *EvidenceHandler) Add(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var (
		ef  *models.EvidenceFile
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		ef, err = h.addUpload(c, id)
	} else {
		var req dto.AddEvidenceRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			badRequest(c, bindErr.Error())
			return
		}
		kind, known := models.ParseEvidenceType(req.EvidenceType)
		if !known {
			respondError(c, apperr.Newf(apperr.UnsupportedFileType, "unknown evidence type %q", req.EvidenceType))
			return
		}
		ef, err = h.svc.AddEvidence(c.Request.Context(), id, req.SourcePath, kind)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewEvidenceResponse(*ef))
}

func (h *EvidenceHandler) addUpload(c *gin.Context, id uuid.UUID) (*models.EvidenceFile, error) {
	kind, known := models.ParseEvidenceType(c.PostForm("evidence_type"))
	if !known {
		return nil, apperr.Newf(apperr.UnsupportedFileType, "unknown evidence type %q", c.PostForm("evidence_type"))
	}

	header, err := c.FormFile("file")
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "file is required", err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "open upload", err)
	}
	defer f.Close()

	return h.svc.AddEvidenceReader(c.Request.Context(), id, filepath.Base(header.Filename), f, kind)
}

func (h *EvidenceHandler) Download(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var q dto.EvidencePathQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	abs, err := h.svc.EvidencePath(id, q.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(abs, filepath.Base(abs))
}

func (h *EvidenceHandler) Rename(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RenameEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ef, err := h.svc.RenameEvidence(c.Request.Context(), id, req.StoredPath, req.NewName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewEvidenceResponse(*ef))
}

func (h *EvidenceHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var q dto.EvidencePathQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.svc.DeleteEvidence(c.Request.Context(), id, q.Path); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
