package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/models"
	"github.com/your-org/ema/pkg/dto"
)

type PersonHandler struct {
	svc *catalog.Service
}

func NewPersonHandler(svc *catalog.Service) *PersonHandler {
	return &PersonHandler{svc: svc}
}

func (h *PersonHandler) respond(c *gin.Context, status int, p *models.Person) {
	folder, err := h.svc.Folder(p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, dto.NewPersonResponse(p, folder))
}

func (h *PersonHandler) List(c *gin.Context) {
	var q dto.PersonQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	persons, err := h.svc.ListPersons(c.Request.Context(), q.Q)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.PersonSummary, 0, len(persons))
	for _, p := range persons {
		folder, _ := h.svc.Folder(p.ID)
		resp = append(resp, dto.NewPersonSummary(p, folder))
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.svc.AddPerson(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Notes != "" || len(req.Tags) > 0 {
		p, err = h.svc.UpdatePerson(c.Request.Context(), p.ID, catalog.PersonUpdate{Notes: &req.Notes, Tags: &req.Tags})
		if err != nil {
			respondError(c, err)
			return
		}
	}
	h.respond(c, http.StatusCreated, p)
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPerson(id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, p)
}

func (h *PersonHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.svc.UpdatePerson(c.Request.Context(), id, catalog.PersonUpdate{
		Name:  req.Name,
		Notes: req.Notes,
		Tags:  req.Tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, p)
}

func (h *PersonHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePerson(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PersonHandler) AddInformation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.InformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.svc.AddInformation(c.Request.Context(), id, req.InfoType, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *PersonHandler) UpdateInformation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	infoID, ok := parseID(c, "infoId")
	if !ok {
		return
	}
	var req dto.InformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.svc.UpdateInformation(c.Request.Context(), id, infoID, req.InfoType, req.Value); err != nil {
		respondError(c, err)
		return
	}
	p, err := h.svc.GetPerson(id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, p)
}

// RemoveInformation answers 204 also for unknown entry ids.
func (h *PersonHandler) RemoveInformation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	infoID, ok := parseID(c, "infoId")
	if !ok {
		return
	}
	if err := h.svc.RemoveInformation(c.Request.Context(), id, infoID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PersonHandler) AddQuote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.svc.AddQuote(c.Request.Context(), id, catalog.QuoteInput{
		Quote: req.Quote,
		Date:  req.Date,
		Time:  req.Time,
		Place: req.Place,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *PersonHandler) RemoveQuote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	quoteID, ok := parseID(c, "quoteId")
	if !ok {
		return
	}
	if err := h.svc.RemoveQuote(c.Request.Context(), id, quoteID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
