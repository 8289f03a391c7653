package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	exchangeID, err := uuid.Parse(chi.URLParam(r, "exchangeId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid exchange id"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	messages, err := a.listMessages(ctx, claims.UserID, exchangeID)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
