package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tranchebook/pkg/platform/httputil"
)

type documentRequest struct {
	URI         string `json:"uri"`
	ContentHash string `json:"content_hash"`
}

type documentResponse struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	ContentHash string `json:"content_hash"`
	UpdatedAt   string `json:"updated_at"`
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := h.docs.Get(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, r, "read document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentResponse{
		Name:        doc.Name,
		URI:         doc.URI,
		ContentHash: doc.ContentHash,
		UpdatedAt:   doc.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, err := httputil.Decode[documentRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.docs.Set(r.Context(), name, req.URI, req.ContentHash)
	if err != nil {
		h.writeServiceError(w, r, "store document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentResponse{
		Name:        doc.Name,
		URI:         doc.URI,
		ContentHash: doc.ContentHash,
		UpdatedAt:   doc.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
