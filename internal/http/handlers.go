package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gastos/internal/dashboard"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports templates, the dataset outcome and every registered
// dependency probe. A dataset that has not been loaded yet is still ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	fail := func(name, msg string) {
		checks[name] = msg
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	st := s.dataset.State()
	switch {
	case st.Err != nil:
		fail("dataset", "failed: "+st.Err.Error())
	case st.Loading:
		checks["dataset"] = "loading"
	case st.LoadedAt.IsZero():
		checks["dataset"] = "not_loaded"
	default:
		checks["dataset"] = "ok"
	}

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			fail(c.Name, fmt.Sprintf("failed: %v", err))
			continue
		}
		checks[c.Name] = "ok"
	}

	writeJSON(w, r, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes request, security and cache counters as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st := s.dataset.State()
	datasetInfo := map[string]any{
		"records": len(st.Records),
		"source":  st.Source,
		"loading": st.Loading,
	}
	if !st.LoadedAt.IsZero() {
		datasetInfo["loadedAt"] = st.LoadedAt.Format(time.RFC3339)
	}
	if st.Err != nil {
		datasetInfo["error"] = st.Err.Error()
	}

	cacheInfo := map[string]any{
		"enabled":   s.dataset.Store().Enabled(),
		"summaries": s.summaries.Stats(),
	}
	if cs, ok := s.dataset.Store().Status(r.Context()); ok {
		cacheInfo["storedAt"] = cs.StoredAt.Format(time.RFC3339)
		cacheInfo["age"] = cs.Age.Round(time.Second).String()
		cacheInfo["valid"] = cs.Valid
	}

	NewJSONResponse(map[string]any{
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"requests":  s.tracer.GetMetrics(),
		"rateLimit": s.limiter.GetMetrics(),
		"security":  s.detector.GetMetrics(),
		"dataset":   datasetInfo,
		"cache":     cacheInfo,
	}).NoStore().Write(w, r)
}

// indexView is the data of the dashboard template.
type indexView struct {
	State    services.State
	Error    string
	Years    []int
	Months   []int
	Summary  *dashboard.Summary
	Disabled map[string]bool
	Queued   bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	// A malformed selection falls back to the latest month.
	params, err := ParseSummaryParams(r.URL.Query())
	if err != nil {
		params = SummaryParams{Disabled: ParseDisabled(r.URL.Query())}
	}

	st := s.records(ctx)
	view := indexView{
		State:    st,
		Years:    dashboard.Years(st.Records),
		Disabled: params.Disabled,
		Queued:   r.URL.Query().Get("queued") == "1",
	}
	if st.Err != nil {
		view.Error = st.Err.Error()
	}
	if sum, ok := s.summary(ctx, st, params); ok {
		view.Summary = &sum
		view.Months = dashboard.MonthsOfYear(st.Records, sum.Year)
	} else if params.Set {
		view.Months = dashboard.MonthsOfYear(st.Records, params.Year)
	}
	if len(view.Months) == 0 && len(view.Years) > 0 {
		view.Months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", view); err != nil {
		logger.ErrorContext(ctx, "Dashboard template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", "dashboard.html")
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}
