package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/httputil"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

// HandleUpload accepts a spreadsheet and returns its PENDING job.
//
//	POST /api/imports  (multipart field "file")
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		if r.ContentLength > h.maxUpload {
			httputil.TooLarge(w, "file exceeds upload limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.TooLarge(w, "file exceeds upload limit")
			return
		}
		httputil.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	job, err := h.imports.Accept(r.Context(), header.Filename, file)
	if errors.Is(err, datanorm.ErrUnsupportedFormat) {
		httputil.BadRequest(w, "unsupported file type; use .csv, .txt, .xlsx or .xlsm")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, job)
}

// HandleListImports returns jobs newest first.
//
//	GET /api/imports?limit=&offset=
func (h *Handlers) HandleListImports(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		httputil.BadRequest(w, "offset must be a non-negative integer")
		return
	}
	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"imports": jobs, "count": len(jobs)})
}

// HandleGetImport returns one job.
//
//	GET /api/imports/{id}
func (h *Handlers) HandleGetImport(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "import not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, job)
}

// HandleImportProgress returns {status, total_records, processed_records}.
// Postgres answers first; the Redis copy only covers a failed database read.
//
//	GET /api/imports/{id}/progress
func (h *Handlers) HandleImportProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.jobs.Get(r.Context(), id)
	if err == nil {
		httputil.OK(w, job.Progress())
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "import not found")
		return
	}

	if h.progress != nil {
		if cached, cerr := h.progress.Get(r.Context(), id); cerr == nil && cached != nil {
			logger.Warn("api: progress served from cache", "import_id", id, "error", err)
			httputil.OK(w, cached)
			return
		}
	}
	httputil.InternalError(w, err)
}

// HandleDeleteImport removes a job with its records and analyses.
//
//	DELETE /api/imports/{id}
func (h *Handlers) HandleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.jobs.Delete(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "import not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if h.progress != nil {
		h.progress.Clear(r.Context(), id)
	}
	logger.Info("api: import deleted", "import_id", id)
	httputil.NoContent(w)
}
