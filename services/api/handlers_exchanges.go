package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skillswap/pkg/db"
)

// ExchangeSummary is the list-view row, joined with skill and participant
// names at read time.
type ExchangeSummary struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	RequesterID        uuid.UUID      `json:"requester_id" db:"requester_id"`
	ProviderID         uuid.UUID      `json:"provider_id" db:"provider_id"`
	SkillID            uuid.UUID      `json:"skill_id" db:"skill_id"`
	Status             ExchangeStatus `json:"status" db:"status"`
	ExchangeType       ExchangeType   `json:"exchange_type" db:"exchange_type"`
	Cost               int64          `json:"cost" db:"cost"`
	SkillTitle         string         `json:"skill_title" db:"skill_title"`
	SkillCategory      string         `json:"skill_category" db:"skill_category"`
	RequesterFirstName string         `json:"requester_first_name" db:"requester_first_name"`
	RequesterLastName  string         `json:"requester_last_name" db:"requester_last_name"`
	ProviderFirstName  string         `json:"provider_first_name" db:"provider_first_name"`
	ProviderLastName   string         `json:"provider_last_name" db:"provider_last_name"`
	ReviewRating       *int           `json:"review_rating,omitempty" db:"review_rating"`
	ReviewComment      *string        `json:"review_comment,omitempty" db:"review_comment"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

func (a *API) handleCreateExchange(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	var req struct {
		SkillID uuid.UUID `json:"skill_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.SkillID == uuid.Nil {
		respondError(w, http.StatusBadRequest, errors.New("skill_id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	exchange, err := a.createExchange(ctx, claims.UserID, req.SkillID)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"exchange": exchange})
}

func (a *API) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	query := `
        SELECT e.id, e.requester_id, e.provider_id, e.skill_id,
               e.status, e.exchange_type, e.cost,
               s.title AS skill_title, s.category AS skill_category,
               req.first_name AS requester_first_name, req.last_name AS requester_last_name,
               prov.first_name AS provider_first_name, prov.last_name AS provider_last_name,
               e.review_rating, e.review_comment,
               e.created_at, e.updated_at
        FROM exchanges e
        JOIN skills s ON s.id = e.skill_id
        JOIN users req ON req.id = e.requester_id
        JOIN users prov ON prov.id = e.provider_id
        WHERE e.requester_id = $1 OR e.provider_id = $1
        ORDER BY e.created_at DESC
    `

	exchanges := []ExchangeSummary{}
	if err := db.Select(ctx, a.store.DB, &exchanges, query, claims.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}

func (a *API) handleExchangeStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	exchangeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid exchange id"))
		return
	}

	var update statusUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	exchange, err := a.changeExchangeStatus(ctx, claims.UserID, exchangeID, update)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"exchange": exchange})
}

func (a *API) handleDeleteExchange(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	exchangeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid exchange id"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := a.deleteExchange(ctx, claims.UserID, exchangeID); err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
