package handlers

import (
	"net/http"
	"strings"

	"github.com/felo/eml-extract/internal/db"
)

const maxSearchResults = 200

// searchResponse is the response of Search
type searchResponse struct {
	Query   string             `json:"query"`
	Results []*db.SearchResult `json:"results"`
}

// Search handles full-text search requests. Snippets mark matches with <mark>.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := intParam(r, "limit", defaultPageSize, maxSearchResults)

	results, err := h.db.SearchMessages(query, limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "search failed", "query", query, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Search failed")
		return
	}
	if results == nil {
		results = []*db.SearchResult{}
	}

	h.writeJSON(w, r, http.StatusOK, searchResponse{Query: query, Results: results})
}
