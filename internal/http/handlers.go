package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"hourlog/internal/core"
	"hourlog/internal/export"
	applog "hourlog/internal/log"
)

// handleGetDay returns the hour entries for a single date.
// GET /api/entries/day?date=YYYY-MM-DD
func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing date parameter")
		return
	}

	userID := UserIDFromContext(r.Context())
	entries, err := s.journal.GetDay(r.Context(), userID, date)
	if err != nil {
		s.structured.LogError(r.Context(), "Get day failed", err, applog.ComponentHTTP, applog.OpRead,
			applog.LogFields{applog.FieldUserID: userID, applog.FieldDate: date})
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Date    string          `json:"date"`
		Entries core.DayEntries `json:"entries"`
	}{Date: date, Entries: entries})
}

// handleMonthCounts returns the number of entries per date for one calendar
// month, served from the LRU cache when possible.
// GET /api/entries/month-counts?year=2024&month=3
func (s *Server) handleMonthCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year parameter")
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month parameter")
		return
	}

	userID := UserIDFromContext(r.Context())
	key := s.countsKey(userID, year, month)

	counts, cached := s.countsCache.Get(key)
	if cached {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Month counts cache hit",
			"user_id", userID, "year", year, "month", month)
	} else {
		counts, err = s.journal.GetMonthCounts(r.Context(), userID, year, month)
		if err != nil {
			s.structured.LogError(r.Context(), "Month counts failed", err, applog.ComponentHTTP, applog.OpRead,
				applog.LogFields{applog.FieldUserID: userID, "year": year, "month": month})
			writeServiceError(w, err)
			return
		}
		s.countsCache.Set(key, counts)
	}

	writeJSON(w, http.StatusOK, struct {
		Year   int            `json:"year"`
		Month  int            `json:"month"`
		Counts map[string]int `json:"counts"`
	}{Year: year, Month: month, Counts: counts})
}

// handleGetAll returns every entry of the user grouped by date.
// GET /api/entries/all
func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	userID := UserIDFromContext(r.Context())
	all, err := s.journal.GetAll(r.Context(), userID)
	if err != nil {
		s.structured.LogError(r.Context(), "Get all failed", err, applog.ComponentHTTP, applog.OpList,
			applog.LogFields{applog.FieldUserID: userID})
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Entries core.AllEntries `json:"entries"`
	}{Entries: all})
}

type setHourRequest struct {
	Date string `json:"date"`
	Hour *int   `json:"hour"`
	Text string `json:"text"`
}

// handleSetHour writes or deletes one hour entry. Empty text deletes.
// POST /api/entries/set-hour
func (s *Server) handleSetHour(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req setHourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Hour == nil {
		writeError(w, http.StatusBadRequest, "missing hour field")
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := s.journal.SetHour(r.Context(), userID, req.Date, *req.Hour, req.Text); err != nil {
		s.structured.LogError(r.Context(), "Set hour failed", err, applog.ComponentHTTP, applog.OpUpdate,
			applog.NewFields().WithEntry(userID, req.Date, *req.Hour))
		writeServiceError(w, err)
		return
	}

	s.structured.LogEntryWritten(r.Context(), userID, req.Date, *req.Hour, strings.TrimSpace(req.Text) == "")
	s.invalidateCounts(userID, req.Date)
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

type setManyRequest struct {
	Date    string          `json:"date"`
	Entries []core.HourText `json:"entries"`
}

// handleSetMany applies a batch of hour writes for one date in a single
// transaction, rolling the aggregates up once.
// POST /api/entries/set-many
func (s *Server) handleSetMany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req setManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := s.journal.SetMany(r.Context(), userID, req.Date, req.Entries); err != nil {
		s.structured.LogError(r.Context(), "Set many failed", err, applog.ComponentHTTP, applog.OpUpdate,
			applog.LogFields{applog.FieldUserID: userID, applog.FieldDate: req.Date, "count": len(req.Entries)})
		writeServiceError(w, err)
		return
	}

	s.invalidateCounts(userID, req.Date)
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// handleExport renders the user's entries in a date range as a Markdown
// download.
// GET /api/export?start=YYYY-MM-DD&end=YYYY-MM-DD&include_empty=true
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	q := r.URL.Query()
	start := strings.TrimSpace(q.Get("start"))
	end := strings.TrimSpace(q.Get("end"))
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "missing start or end parameter")
		return
	}
	includeEmpty := false
	if v := strings.TrimSpace(q.Get("include_empty")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid include_empty parameter")
			return
		}
		includeEmpty = b
	}

	userID := UserIDFromContext(r.Context())
	doc, err := s.journal.ExportRange(r.Context(), userID, start, end, includeEmpty)
	if err != nil {
		s.structured.LogError(r.Context(), "Export failed", err, applog.ComponentHTTP, applog.OpExport,
			applog.LogFields{applog.FieldUserID: userID, "start": start, "end": end})
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(start, end)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// handleMetrics reports request, rate-limit, detection and cache counters.
// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	requests := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	detections := s.detector.GetMetrics()

	writeJSON(w, http.StatusOK, struct {
		TotalRequests         int64 `json:"total_requests"`
		AverageResponseTimeUS int64 `json:"average_response_time_us"`
		RateLimitRejected     int64 `json:"rate_limit_rejected"`
		RateLimitClients      int64 `json:"rate_limit_clients"`
		SuspiciousRequests    int64 `json:"suspicious_requests"`
		MonthCountsCacheSize  int   `json:"month_counts_cache_size"`
	}{
		TotalRequests:         requests.TotalRequests,
		AverageResponseTimeUS: requests.AverageResponseTime,
		RateLimitRejected:     limits.RejectedRequests,
		RateLimitClients:      limits.ClientCount,
		SuspiciousRequests:    detections.SuspiciousRequests,
		MonthCountsCacheSize:  s.countsCache.Size(),
	})
}
