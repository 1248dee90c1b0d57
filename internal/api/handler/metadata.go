package handler

import (
	"net/http"

	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/store"
)

// NewGetCellMetadataHandler returns the handler for GET /api/v1/cells/{cellID}.
func NewGetCellMetadataHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "cellID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "cellID must be an integer", nil)
			return
		}

		cell, err := st.GetCellMetadata(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, cell)
	}
}

// NewListCellMetadataHandler returns the handler for GET /api/v1/cells.
func NewListCellMetadataHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pagination(r)
		q := r.URL.Query()
		cells, total, err := st.ListCellMetadata(r.Context(), store.MetadataFilter{
			Barcode:  q.Get("barcode"),
			SampleID: q.Get("sample_id"),
			Organism: q.Get("organism"),
			Tissue:   q.Get("tissue"),
			Disease:  q.Get("disease"),
			Sex:      q.Get("sex"),
			CellType: q.Get("cell_type"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			storeError(w, err)
			return
		}
		response.Collection(w, cells, meta(page, limit, total))
	}
}
