package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/httputil"
	"github.com/ignite/intake-extractor/internal/service/classification"
)

// HandleClassificationQueue lists valid records without a verdict.
//
//	GET /api/classification/queue?fields=nome,cid&limit=100
func (h *Handlers) HandleClassificationQueue(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	items, err := h.classification.Queue(r.Context(), fields, limit)
	if errors.Is(err, classification.ErrUnknownField) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"records": items, "count": len(items)})
}

// HandleClassificationResults upserts verdicts keyed by record id.
//
//	POST /api/classification/results  [{record_id, status_label, justification, score}]
func (h *Handlers) HandleClassificationResults(w http.ResponseWriter, r *http.Request) {
	var results []domain.ClassificationResult
	if !httputil.Decode(w, r, &results) {
		return
	}
	summary, err := h.classification.SubmitResults(r.Context(), results)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// HandleReprocessRecord puts a record back in the classification queue.
//
//	POST /api/records/{id}/reprocess
func (h *Handlers) HandleReprocessRecord(w http.ResponseWriter, r *http.Request) {
	err := h.classification.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "record not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "requeued"})
}

// HandleRecordAnalysis returns the stored verdict for a record.
//
//	GET /api/records/{id}/analysis
func (h *Handlers) HandleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.classification.Analysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "analysis not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleSchemaColumns returns the live column set of the records table.
//
//	GET /api/schema/columns
func (h *Handlers) HandleSchemaColumns(w http.ResponseWriter, r *http.Request) {
	if err := h.columns.Refresh(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	cols := h.columns.Columns()
	httputil.OK(w, map[string]interface{}{"columns": cols, "count": len(cols)})
}
