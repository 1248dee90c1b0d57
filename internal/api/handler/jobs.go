package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/job"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// NewSubmitJobHandler returns the handler for POST /api/v1/jobs/submit. The
// job is dispatched asynchronously; the response carries the running job and
// the client polls the result endpoint.
func NewSubmitJobHandler(svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name            *string `json:"job_name"`
			ParentJobID     *int64  `json:"parent_job_id"`
			Comment         *string `json:"comment"`
			Model           int     `json:"model"`
			JobType         int     `json:"job_type"`
			FileInfo        string  `json:"file_info"`
			Species         int     `json:"species"`
			CellIndex       *string `json:"cell_index"`
			ResultCellCount *int    `json:"result_cell_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		created, err := svc.Submit(r.Context(), job.SubmitParams{
			Name:            req.Name,
			ParentJobID:     req.ParentJobID,
			Comment:         req.Comment,
			Model:           req.Model,
			JobType:         req.JobType,
			FileInfo:        req.FileInfo,
			Species:         req.Species,
			CellIndex:       req.CellIndex,
			ResultCellCount: req.ResultCellCount,
		})
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		response.Accepted(w, created)
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "jobID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be an integer", nil)
			return
		}

		j, err := st.GetJob(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, j)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pagination(r)
		filter := store.JobFilter{
			Name:   r.URL.Query().Get("job_name"),
			Status: r.URL.Query().Get("status"),
			Page:   page,
			Limit:  limit,
		}
		if v := r.URL.Query().Get("id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be an integer", nil)
				return
			}
			filter.ID = id
		}
		if v := r.URL.Query().Get("created_since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"created_since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.CreatedSince = ts
		}

		jobs, total, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			storeError(w, err)
			return
		}
		response.Collection(w, jobs, meta(page, limit, total))
	}
}

// NewJobResultHandler returns the handler for GET /api/v1/jobs/{jobID}/result.
func NewJobResultHandler(svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "jobID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be an integer", nil)
			return
		}

		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 10)

		result, err := svc.GetResult(r.Context(), id, page, pageSize)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewModifyJobHandler returns the handler for PATCH /api/v1/jobs/{jobID}.
// Only the descriptive fields can change; status and pipeline inputs are
// immutable after submission.
func NewModifyJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "jobID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be an integer", nil)
			return
		}

		var req struct {
			Name        *string `json:"job_name"`
			ParentJobID *int64  `json:"parent_job_id"`
			Comment     *string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == nil && req.ParentJobID == nil && req.Comment == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "No fields to modify", nil)
			return
		}

		if err := st.ModifyJob(r.Context(), &models.Job{
			ID:          id,
			Name:        req.Name,
			ParentJobID: req.ParentJobID,
			Comment:     req.Comment,
		}); err != nil {
			storeError(w, err)
			return
		}

		j, err := st.GetJob(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, j)
	}
}

// NewDeleteJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "jobID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be an integer", nil)
			return
		}

		if err := st.DeleteJob(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, map[string]any{"deleted": id})
	}
}

// NewDeleteJobsHandler returns the handler for POST /api/v1/jobs/batch-delete.
func NewDeleteJobsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.IDs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "ids is required", nil)
			return
		}

		if err := st.DeleteJobs(r.Context(), req.IDs); err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, map[string]any{"deleted": req.IDs})
	}
}
