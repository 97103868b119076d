package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/ema/internal/jobs"
	"github.com/your-org/ema/pkg/dto"
)

type JobHandler struct {
	jobs *jobs.Manager
}

func NewJobHandler(jm *jobs.Manager) *JobHandler {
	return &JobHandler{jobs: jm}
}

func (h *JobHandler) List(c *gin.Context) {
	list := h.jobs.List()
	resp := make([]dto.JobResponse, 0, len(list))
	for _, j := range list {
		resp = append(resp, jobs.ToResponse(j))
	}
	c.JSON(http.StatusOK, dto.JobListResponse{Jobs: resp, Total: len(resp)})
}

func (h *JobHandler) Get(c *gin.Context) {
	j, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found", "code": "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, jobs.ToResponse(j))
}
