package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/inventory"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/go-chi/chi/v5"
)

// itemRequest is the writable part of an item.
type itemRequest struct {
	Name          string  `json:"name"`
	Quantity      int     `json:"quantity"`
	AssetLink     *string `json:"usdzLink"`
	ThumbnailLink *string `json:"thumbnailLink"`
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
}

// listItems handles GET /items.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.collection.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items})
}

// getItem handles GET /items/{id}.
func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// putItem handles PUT /items/{id}: creates or overwrites the item.
func (s *Server) putItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req itemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", common.ErrDecode, err))
		return
	}

	form := inventory.NewForm()
	existing, err := s.items.Get(r.Context(), id)
	switch {
	case err == nil:
		form = inventory.EditForm(*existing)
	case errors.Is(err, common.ErrNotFound):
		form.ID = id
	default:
		writeError(w, err)
		return
	}

	form.Name = req.Name
	form.Quantity = req.Quantity
	// Links are only replaced when sent.
	if req.AssetLink != nil {
		form.AssetURL = *req.AssetLink
	}
	if req.ThumbnailLink != nil {
		form.ThumbnailURL = *req.ThumbnailLink
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	item, err := s.items.Save(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, item)
}

// deleteItem handles DELETE /items/{id}.
func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.items.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
