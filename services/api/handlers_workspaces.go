package api

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
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

	view, err := a.getWorkspace(ctx, claims.UserID, exchangeID)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (a *API) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	workspaceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid workspace id"))
		return
	}

	// Leave headroom for the multipart framing around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(a.config.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid multipart upload"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("file part is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	upload := artifactUpload{
		Name:        filepath.Base(strings.TrimSpace(header.Filename)),
		ContentType: contentType,
		Size:        header.Size,
		Comment:     strings.TrimSpace(r.FormValue("comment")),
		Body:        file,
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	artifact, err := a.uploadArtifact(ctx, claims.UserID, workspaceID, upload)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"artifact": artifact})
}

func (a *API) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	workspaceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid workspace id"))
		return
	}
	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid artifact id"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	url, err := a.artifactDownloadURL(ctx, claims.UserID, workspaceID, artifactID)
	if err != nil {
		respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(presignURLExpiry.Seconds()),
	})
}
