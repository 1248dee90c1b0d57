package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// NewCreateSampleHandler returns the handler for POST /api/v1/samples. It
// only registers the catalog row; the dataset file itself is provisioned by
// the ingestion tooling.
func NewCreateSampleHandler(st store.Store, node *snowflake.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Species        *string `json:"species"`
			SampleID       string  `json:"sample_id"`
			ProjectID      *string `json:"project_id"`
			Tissue         *string `json:"tissue"`
			CellCount      *int    `json:"cell_count"`
			ProjectTitle   *string `json:"project_title"`
			ProjectSummary *string `json:"project_summary"`
			Platform       *string `json:"platform"`
			Ext            *string `json:"ext"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.SampleID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sample_id is required", nil)
			return
		}

		now := time.Now().UTC()
		sample := &models.Sample{
			ID:             node.Generate().Int64(),
			Species:        req.Species,
			SampleID:       req.SampleID,
			ProjectID:      req.ProjectID,
			Tissue:         req.Tissue,
			CellCount:      req.CellCount,
			ProjectTitle:   req.ProjectTitle,
			ProjectSummary: req.ProjectSummary,
			Platform:       req.Platform,
			Ext:            req.Ext,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.CreateSample(r.Context(), sample); err != nil {
			storeError(w, err)
			return
		}

		response.Created(w, sample)
	}
}

// NewGetSampleHandler returns the handler for GET /api/v1/samples/{sampleID}.
func NewGetSampleHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "sampleID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sampleID must be an integer", nil)
			return
		}

		sample, err := st.GetSample(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, sample)
	}
}

// NewListSamplesHandler returns the handler for GET /api/v1/samples.
func NewListSamplesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pagination(r)
		samples, total, err := st.ListSamples(r.Context(), store.SampleFilter{
			Species:  r.URL.Query().Get("species"),
			SampleID: r.URL.Query().Get("sample_id"),
			Tissue:   r.URL.Query().Get("tissue"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			storeError(w, err)
			return
		}
		response.Collection(w, samples, meta(page, limit, total))
	}
}
