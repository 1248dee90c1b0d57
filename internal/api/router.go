package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/tyvekbio/cellseek/internal/api/middleware"
	"github.com/tyvekbio/cellseek/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitJobHandler  http.HandlerFunc
	GetJobHandler     http.HandlerFunc
	ListJobsHandler   http.HandlerFunc
	JobResultHandler  http.HandlerFunc
	ModifyJobHandler  http.HandlerFunc
	DeleteJobHandler  http.HandlerFunc
	DeleteJobsHandler http.HandlerFunc

	UploadFileHandler http.HandlerFunc
	GetFileHandler    http.HandlerFunc
	ListFilesHandler  http.HandlerFunc
	DeleteFileHandler http.HandlerFunc

	CreateSampleHandler http.HandlerFunc
	GetSampleHandler    http.HandlerFunc
	ListSamplesHandler  http.HandlerFunc

	GetCellHandler   http.HandlerFunc
	ListCellsHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs/submit", orNotImplemented(deps.SubmitJobHandler))
		r.Post("/api/v1/jobs/batch-delete", orNotImplemented(deps.DeleteJobsHandler))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/jobs/{jobID}/result", orNotImplemented(deps.JobResultHandler))
		r.Patch("/api/v1/jobs/{jobID}", orNotImplemented(deps.ModifyJobHandler))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))

		r.Post("/api/v1/files", orNotImplemented(deps.UploadFileHandler))
		r.Get("/api/v1/files", orNotImplemented(deps.ListFilesHandler))
		r.Get("/api/v1/files/{fileID}", orNotImplemented(deps.GetFileHandler))
		r.Delete("/api/v1/files/{fileID}", orNotImplemented(deps.DeleteFileHandler))

		r.Post("/api/v1/samples", orNotImplemented(deps.CreateSampleHandler))
		r.Get("/api/v1/samples", orNotImplemented(deps.ListSamplesHandler))
		r.Get("/api/v1/samples/{sampleID}", orNotImplemented(deps.GetSampleHandler))

		r.Get("/api/v1/cells", orNotImplemented(deps.ListCellsHandler))
		r.Get("/api/v1/cells/{cellID}", orNotImplemented(deps.GetCellHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
