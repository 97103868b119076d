package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/jobs"
	"github.com/your-org/ema/pkg/dto"
)

type ArchiveHandler struct {
	svc  *catalog.Service
	jobs *jobs.Manager
}

func NewArchiveHandler(svc *catalog.Service, jm *jobs.Manager) *ArchiveHandler {
	return &ArchiveHandler{svc: svc, jobs: jm}
}

// Export starts an export job and answers 202 with the job.
func (h *ArchiveHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	job := h.jobs.Start(jobs.KindExport, func(ctx context.Context, progress catalog.Progress) (any, error) {
		res, err := h.svc.Export(ctx, catalog.ExportRequest{
			PersonIDs:   req.PersonIDs,
			Destination: req.Destination,
			Mirror:      req.Mirror,
		}, progress)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	c.JSON(http.StatusAccepted, jobs.ToResponse(job))
}

// Import starts an import job from a local path or a mirrored object key.
func (h *ArchiveHandler) Import(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Path == "" && req.ObjectKey == "" {
		badRequest(c, "path or object_key is required")
		return
	}

	job := h.jobs.Start(jobs.KindImport, func(ctx context.Context, progress catalog.Progress) (any, error) {
		report, err := h.svc.Import(ctx, catalog.ImportRequest{Path: req.Path, ObjectKey: req.ObjectKey}, progress)
		if err != nil {
			return nil, err
		}
		return report, nil
	})
	c.JSON(http.StatusAccepted, jobs.ToResponse(job))
}

func (h *ArchiveHandler) Remote(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	archives, err := h.svc.RemoteArchives(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives, "total": len(archives)})
}
