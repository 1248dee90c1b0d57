package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// maxUploadBytes caps dataset uploads at 2 GiB.
const maxUploadBytes = 2 << 30

// NewUploadFileHandler returns the handler for POST /api/v1/files. The
// multipart "file" part is written under the upload directory with an
// id-prefixed name so concurrent uploads of the same filename never collide,
// and a file row is created pointing at it.
func NewUploadFileHandler(st store.Store, node *snowflake.Node, uploadDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		src, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing multipart field 'file'", nil)
			return
		}
		defer src.Close()

		id := node.Generate().Int64()
		name := filepath.Base(header.Filename)
		relPath := fmt.Sprintf("%d_%s", id, name)

		dst, err := os.Create(filepath.Join(uploadDir, relPath))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store upload", nil)
			return
		}
		size, err := io.Copy(dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(filepath.Join(uploadDir, relPath))
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store upload", nil)
			return
		}

		now := time.Now().UTC()
		file := &models.File{
			ID:        id,
			Name:      name,
			Path:      relPath,
			Size:      size,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateFile(r.Context(), file); err != nil {
			os.Remove(filepath.Join(uploadDir, relPath))
			storeError(w, err)
			return
		}

		response.Created(w, file)
	}
}

// NewGetFileHandler returns the handler for GET /api/v1/files/{fileID}.
func NewGetFileHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "fileID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "fileID must be an integer", nil)
			return
		}

		file, err := st.GetFile(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, file)
	}
}

// NewListFilesHandler returns the handler for GET /api/v1/files.
func NewListFilesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pagination(r)
		files, total, err := st.ListFiles(r.Context(), store.FileFilter{
			Name:  r.URL.Query().Get("name"),
			Page:  page,
			Limit: limit,
		})
		if err != nil {
			storeError(w, err)
			return
		}
		response.Collection(w, files, meta(page, limit, total))
	}
}

// NewDeleteFileHandler returns the handler for DELETE /api/v1/files/{fileID}.
// The database row goes first; the on-disk artifact is removed best-effort
// afterwards.
func NewDeleteFileHandler(st store.Store, uploadDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "fileID")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "fileID must be an integer", nil)
			return
		}

		file, err := st.GetFile(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		if err := st.DeleteFile(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		_ = os.Remove(filepath.Join(uploadDir, file.Path))

		response.JSON(w, map[string]any{"deleted": id})
	}
}
