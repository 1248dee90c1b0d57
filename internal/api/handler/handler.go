// Package handler contains the HTTP handlers for the cellseek API. Each
// constructor takes only the dependencies that handler needs and returns a
// plain http.HandlerFunc for the router to mount.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/store"
)

// pathID parses the named chi URL parameter as an int64 id.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// pagination reads the shared page/limit query parameters.
func pagination(r *http.Request) (page, limit int) {
	return queryInt(r, "page", 1), queryInt(r, "limit", 20)
}

// meta builds the pagination envelope for a collection response.
func meta(page, limit, total int) response.PaginationMeta {
	return response.PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

// storeError maps store sentinel errors onto API error responses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", "Job already finished", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
