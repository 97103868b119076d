package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/models"
)

type CreatePersonRequest struct {
	Name  string   `json:"name" binding:"required"`
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
}

// UpdatePersonRequest changes only the fields that are present.
type UpdatePersonRequest struct {
	Name  *string   `json:"name"`
	Notes *string   `json:"notes"`
	Tags  *[]string `json:"tags"`
}

type PersonResponse struct {
	ID          uuid.UUID                 `json:"id"`
	Name        string                    `json:"name"`
	Folder      string                    `json:"folder"`
	Notes       string                    `json:"notes,omitempty"`
	Tags        []string                  `json:"tags,omitempty"`
	Information []models.InformationEntry `json:"information"`
	Quotes      []models.QuoteEntry       `json:"quotes"`
	CreatedAt   string                    `json:"created_at"`
	UpdatedAt   string                    `json:"updated_at"`
}

// PersonSummary is a list row.
type PersonSummary struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Folder           string    `json:"folder"`
	Tags             []string  `json:"tags,omitempty"`
	InformationCount int       `json:"information_count"`
	QuoteCount       int       `json:"quote_count"`
	UpdatedAt        string    `json:"updated_at"`
}

type PersonListResponse struct {
	Persons []PersonSummary `json:"persons"`
	Total   int             `json:"total"`
}

type PersonQuery struct {
	Q string `form:"q"`
}

func NewPersonResponse(p *models.Person, folder string) PersonResponse {
	return PersonResponse{
		ID:          p.ID,
		Name:        p.Name,
		Folder:      folder,
		Notes:       p.Notes,
		Tags:        p.Tags,
		Information: p.Information,
		Quotes:      p.Quotes,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func NewPersonSummary(p *models.Person, folder string) PersonSummary {
	return PersonSummary{
		ID:               p.ID,
		Name:             p.Name,
		Folder:           folder,
		Tags:             p.Tags,
		InformationCount: len(p.Information),
		QuoteCount:       len(p.Quotes),
		UpdatedAt:        p.UpdatedAt.Format(time.RFC3339),
	}
}

type InformationRequest struct {
	InfoType string `json:"info_type" binding:"required"`
	Value    string `json:"value" binding:"required"`
}

type QuoteRequest struct {
	Quote string  `json:"quote" binding:"required"`
	Date  string  `json:"date"`
	Time  *string `json:"time"`
	Place *string `json:"place"`
}
