package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal/calendar"
	"quotedesk/internal/export"
	"quotedesk/internal/historical"
	"quotedesk/internal/market"
	"quotedesk/internal/news"
	"quotedesk/internal/quotes"
)

// Localized messages shown to site visitors.
const (
	msgHistoricalFailed = "Gagal memuat data. Silakan coba lagi nanti."
	msgNoDownloadData   = "Tidak ada data yang tersedia untuk diunduh"
	msgCalendarFailed   = "Failed to fetch economic calendar data"
)

type QuoteSource interface {
	Latest(ctx context.Context) []quotes.Quote
}

type HistorySource interface {
	Fetch(ctx context.Context) (historical.Response, error)
}

type NewsSource interface {
	Latest(ctx context.Context, limit int) []news.Item
}

type CalendarSource interface {
	Events(ctx context.Context, f calendar.Filter) ([]calendar.Event, error)
}

type SnapshotSource interface {
	Snapshot() market.Snapshot
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type HealthHandler struct {
	live SnapshotSource
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	resp := map[string]any{"status": "healthy"}
	if h.live != nil {
		s := h.live.Snapshot()
		resp["feed"] = map[string]any{
			"loading":      s.State.Table.Loading,
			"reconnecting": s.State.Table.Reconnecting,
			"updatedAt":    s.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarketHandler serves the REST quote list. It always answers 200.
type MarketHandler struct {
	src QuoteSource
}

func (h *MarketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.src.Latest(r.Context()))
}

// LiveHandler serves the last mapped socket snapshot for clients that poll.
type LiveHandler struct {
	src SnapshotSource
}

func (h *LiveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.src.Snapshot())
}

type historicalPage struct {
	Instruments []string         `json:"instruments"`
	Instrument  string           `json:"instrument"`
	Page        int              `json:"page"`
	TotalPages  int              `json:"totalPages"`
	Total       int              `json:"total"`
	Rows        []historicalView `json:"rows"`
}

type historicalView struct {
	historical.Row
	DisplayDate string `json:"displayDate"`
}

type HistoricalHandler struct {
	src HistorySource
	log *zap.Logger
	now func() time.Time
}

// query reads instrument, from and to. Without an instrument parameter the
// dataset default is used; an empty instrument parameter selects everything.
func (h *HistoricalHandler) query(r *http.Request, ds *historical.Dataset) historical.Query {
	v := r.URL.Query()
	q := historical.Query{From: v.Get("from"), To: v.Get("to")}
	if v.Has("instrument") {
		q.Instrument = v.Get("instrument")
	} else {
		q.Instrument = ds.Default()
	}
	return q
}

func (h *HistoricalHandler) load(w http.ResponseWriter, r *http.Request) (*historical.Dataset, bool) {
	resp, err := h.src.Fetch(r.Context())
	if err != nil {
		h.log.Warn("historical fetch failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, msgHistoricalFailed)
		return nil, false
	}
	return historical.NewDataset(resp), true
}

func (h *HistoricalHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ds, ok := h.load(w, r)
	if !ok {
		return
	}
	q := h.query(r, ds)
	rows := ds.Filter(q)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	items, total := historical.Page(rows, page)
	if page > total && total > 0 {
		page = total
	}

	views := make([]historicalView, len(items))
	for i, it := range items {
		views[i] = historicalView{Row: it, DisplayDate: historical.DisplayDate(it.Date)}
	}
	writeJSON(w, http.StatusOK, historicalPage{
		Instruments: ds.Instruments(),
		Instrument:  q.Instrument,
		Page:        page,
		TotalPages:  total,
		Total:       len(rows),
		Rows:        views,
	})
}

// HandleExport streams a CSV. With filtered=true the same filters as Handle
// apply; otherwise the last rows of the whole dataset are exported.
func (h *HistoricalHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ds, ok := h.load(w, r)
	if !ok {
		return
	}
	filtered, _ := strconv.ParseBool(r.URL.Query().Get("filtered"))
	rows := export.Select(ds, h.query(r, ds), filtered)
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, msgNoDownloadData)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(h.now())+`"`)
	if err := export.WriteCSV(w, rows); err != nil {
		if errors.Is(err, export.ErrNoData) {
			writeError(w, http.StatusNotFound, msgNoDownloadData)
			return
		}
		h.log.Warn("csv export failed", zap.Error(err))
	}
}

type NewsHandler struct {
	src NewsSource
}

func (h *NewsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.src.Latest(r.Context(), limit))
}

type CalendarHandler struct {
	src CalendarSource
	log *zap.Logger
}

func (h *CalendarHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	f := calendar.ParseFilter(strings.TrimSpace(r.URL.Query().Get("filter")))
	events, err := h.src.Events(r.Context(), f)
	if err != nil {
		h.log.Warn("calendar fetch failed", zap.String("filter", string(f)), zap.Error(err))
		writeError(w, http.StatusBadGateway, msgCalendarFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filter": f, "events": events})
}
