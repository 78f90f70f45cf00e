package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gastos/internal/core"
	"gastos/internal/dashboard"
	applog "gastos/internal/log"
	"gastos/internal/middleware/trace"
	"gastos/internal/services"
)

// expensesResponse mirrors services.State on the wire. Records and Error are
// mutually exclusive.
type expensesResponse struct {
	Records  []core.MonthlyRecord `json:"records"`
	Loading  bool                 `json:"loading"`
	Error    string               `json:"error,omitempty"`
	Source   services.Source      `json:"source,omitempty"`
	LoadedAt *time.Time           `json:"loadedAt,omitempty"`
}

func newExpensesResponse(st services.State) expensesResponse {
	resp := expensesResponse{Records: st.Records, Loading: st.Loading, Source: st.Source}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !st.LoadedAt.IsZero() {
		t := st.LoadedAt
		resp.LoadedAt = &t
	}
	return resp
}

// handleExpenses returns the dataset state, loading it on first use.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	st := s.records(r.Context())
	NewJSONResponse(newExpensesResponse(st)).NoStore().Write(w, r)
}

type periodsResponse struct {
	Years  []int                 `json:"years"`
	Months []dashboard.YearMonth `json:"months"`
	Latest *dashboard.YearMonth  `json:"latest,omitempty"`
}

// handlePeriods lists the selectable years and months.
func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	st := s.records(r.Context())
	if st.Err != nil {
		writeError(w, r, http.StatusBadGateway, st.Err.Error())
		return
	}
	resp := periodsResponse{
		Years:  dashboard.Years(st.Records),
		Months: dashboard.Months(st.Records),
	}
	if latest, ok := dashboard.LatestMonth(st.Records); ok {
		resp.Latest = &dashboard.YearMonth{Year: latest.Year, Month: latest.Month}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleSummary returns the month view. Without year and month the latest
// month is used.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseSummaryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	st := s.records(r.Context())
	if st.Err != nil {
		writeError(w, r, http.StatusBadGateway, st.Err.Error())
		return
	}

	sum, ok := s.summary(r.Context(), st, params)
	if !ok {
		writeError(w, r, http.StatusNotFound, "no data for the requested month")
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleCategoryStats aggregates one category across every month.
func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	name := sanitizeInput(r.PathValue("name"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "category name is required")
		return
	}

	st := s.records(r.Context())
	if st.Err != nil {
		writeError(w, r, http.StatusBadGateway, st.Err.Error())
		return
	}

	stats, err := dashboard.ComputeCategoryStats(st.Records, name)
	if errors.Is(err, dashboard.ErrUnknownCategory) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

type refreshQueuedResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
}

// handleRefresh bypasses the cache. With a publisher the request is queued
// for the worker and answered with 202; otherwise the fetch runs inline.
// Form posts from the dashboard are redirected back to the page.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	fromForm := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

	if s.publisher != nil {
		requestID := trace.GetRequestID(ctx)
		if err := s.publisher.PublishRefreshRequest(ctx, "api", requestID); err != nil {
			logger.ErrorContext(ctx, "Failed to enqueue refresh request",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, err)
			writeError(w, r, http.StatusServiceUnavailable, "refresh queue unavailable")
			return
		}
		if fromForm {
			http.Redirect(w, r, "/?queued=1", http.StatusSeeOther)
			return
		}
		writeJSON(w, r, http.StatusAccepted, refreshQueuedResponse{Status: "queued", RequestID: requestID})
		return
	}

	_, err := s.dataset.Refresh(ctx)
	if fromForm {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	NewJSONResponse(newExpensesResponse(s.dataset.State())).NoStore().Write(w, r)
}
