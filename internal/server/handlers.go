package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"promptsupport/internal/core"
	"promptsupport/internal/pipeline"
	"promptsupport/internal/review"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunSummary is the list-view shape of a run.
type RunSummary struct {
	RunID        string            `json:"run_id"`
	DocID        string            `json:"doc_id"`
	Version      int               `json:"version"`
	Revision     int               `json:"revision"`
	Status       core.RunStatus    `json:"status"`
	ReviewStatus core.ReviewStatus `json:"review_status"`
	Badge        review.Badge      `json:"badge"`
	CreatedAt    string            `json:"created_at"`
}

// Diagnostics aggregates every stage artifact of a run revision.
type Diagnostics struct {
	Run        *core.RunRecord                 `json:"run"`
	Analysis   *core.AnalysisResult            `json:"analysis,omitempty"`
	Outline    *core.GlobalOutline             `json:"global_outline,omitempty"`
	Outlines   map[string]*core.ArticleOutline `json:"article_outlines,omitempty"`
	Prewrites  map[string]*core.PrewriteData   `json:"prewrites,omitempty"`
	Articles   []*core.Article                 `json:"articles,omitempty"`
	Validation *core.ValidationResult          `json:"validation,omitempty"`
	QA         *core.QAResult                  `json:"qa,omitempty"`
	Adjustment *core.AdjustmentResult          `json:"adjustment,omitempty"`
}

// RerunRequest is the optional POST /api/runs/{id}/rerun body. An empty
// or absent stage list reruns the whole sequence.
type RerunRequest struct {
	Stages []string `json:"stages"`
}

// ReviewRequest is the POST /api/runs/{id}/review body.
type ReviewRequest struct {
	Decision string `json:"decision"` // "approve" or "reject"
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListRuns(1); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, s.summarize(run))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, s.summarize(run))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	diag, err := s.collectDiagnostics(run)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, diag)
}

func (s *Server) handleStageDiagnostics(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	var (
		payload any
		err     error
	)
	switch stage := chi.URLParam(r, "stage"); stage {
	case "analysis":
		payload, err = s.store.GetAnalysis(run.RunID, run.Revision)
	case "global_outline":
		payload, err = s.store.GetGlobalOutline(run.RunID, run.Revision)
	case "article_outlines":
		payload, err = s.store.GetArticleOutlines(run.RunID, run.Revision)
	case "prewrites":
		payload, err = s.store.GetPrewrites(run.RunID, run.Revision)
	case "articles":
		payload, err = s.store.GetArticles(run.RunID, run.Revision)
	case "validation":
		payload, err = s.store.GetValidation(run.RunID, run.Revision)
	case "qa":
		payload, err = s.store.GetQAResult(run.RunID, run.Revision)
	case "adjustment":
		payload, err = s.store.GetAdjustment(run.RunID, run.Revision)
	default:
		s.respondError(w, http.StatusBadRequest, "unknown stage: "+stage)
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	var req RerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stages, err := pipeline.ParseStages(req.Stages)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.reviews.Rerun(r.Context(), run.RunID, stages); err != nil {
		if errors.Is(err, review.ErrAlreadyPublished) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	run, err = s.store.GetRun(run.RunID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.summarize(run))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Decision {
	case "approve":
		err = s.reviews.Approve(run.RunID)
	case "reject":
		err = s.reviews.Reject(run.RunID, req.Reason)
	default:
		s.respondError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}
	if err != nil {
		if errors.Is(err, review.ErrAlreadyPublished) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	run, err = s.store.GetRun(run.RunID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.summarize(run))
}

func (s *Server) handleDocVersions(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	versions, err := s.store.ListVersions(docID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(versions) == 0 {
		s.respondError(w, http.StatusNotFound, "no versions for document "+docID)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "versions": versions})
}

func (s *Server) collectDiagnostics(run *core.RunRecord) (*Diagnostics, error) {
	diag := &Diagnostics{Run: run}
	var err error
	if diag.Analysis, err = s.store.GetAnalysis(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Outline, err = s.store.GetGlobalOutline(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Outlines, err = s.store.GetArticleOutlines(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Prewrites, err = s.store.GetPrewrites(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Articles, err = s.store.GetArticles(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Validation, err = s.store.GetValidation(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.QA, err = s.store.GetQAResult(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	if diag.Adjustment, err = s.store.GetAdjustment(run.RunID, run.Revision); err != nil {
		return nil, err
	}
	return diag, nil
}

func (s *Server) summarize(run *core.RunRecord) RunSummary {
	badge := review.BadgeWarning
	if validation, err := s.store.GetValidation(run.RunID, run.Revision); err == nil && validation != nil {
		bundle := core.MetricsBundle{Validation: *validation}
		if qaRes, err := s.store.GetQAResult(run.RunID, run.Revision); err == nil && qaRes != nil {
			bundle.QA = *qaRes
		}
		if adjustment, err := s.store.GetAdjustment(run.RunID, run.Revision); err == nil && adjustment != nil {
			bundle.Adjustment = *adjustment
		}
		badge = review.ScoreBadge(bundle)
	}
	return RunSummary{
		RunID:        run.RunID,
		DocID:        run.DocID,
		Version:      run.Version,
		Revision:     run.Revision,
		Status:       run.Status,
		ReviewStatus: run.ReviewStatus,
		Badge:        badge,
		CreatedAt:    run.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// lookupRun resolves the {id} URL parameter, writing a 404 when absent.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*core.RunRecord, bool) {
	runID := chi.URLParam(r, "id")
	run, err := s.store.GetRun(runID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if run == nil {
		s.respondError(w, http.StatusNotFound, "run "+runID+" not found")
		return nil, false
	}
	return run, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
