package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quotedesk/internal/calendar"
	"quotedesk/internal/historical"
	"quotedesk/internal/market"
	"quotedesk/internal/news"
	"quotedesk/internal/quotes"
	"quotedesk/internal/view"
)

type fakeQuotes struct{}

func (fakeQuotes) Latest(context.Context) []quotes.Quote { return quotes.Sample() }

type fakeHistory struct {
	resp historical.Response
	err  error
}

func (f fakeHistory) Fetch(context.Context) (historical.Response, error) { return f.resp, f.err }

type fakeNews struct{ gotLimit atomic.Int64 }

func (f *fakeNews) Latest(_ context.Context, limit int) []news.Item {
	f.gotLimit.Store(int64(limit))
	return []news.Item{{ID: 1, Title: "Gold steadies"}}
}

type fakeCalendar struct{ err error }

func (f fakeCalendar) Events(_ context.Context, flt calendar.Filter) ([]calendar.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []calendar.Event{{ID: string(flt) + "-x-0", ImpactLabel: "High"}}, nil
}

type fakeLive struct{}

func (fakeLive) Snapshot() market.Snapshot {
	return market.Snapshot{Type: "quotes", Table: []view.Row{{Symbol: "XUL10_BBJ", Last: 4037.75}}}
}

func fig(s string) historical.Figure { return historical.Figure{Text: s, Valid: true} }

func history() historical.Response {
	lgd := make([]historical.Item, 10)
	for i := range lgd {
		lgd[i] = historical.Item{ID: int64(i + 1), Symbol: "LGD", Date: fmt.Sprintf("2025-09-%02d", i+1), Close: fig("3850")}
	}
	return historical.Response{Status: "success", Data: []historical.Group{
		{Symbol: "LGD Daily", Data: lgd},
		{Symbol: "BCO Daily", Data: []historical.Item{{ID: 99, Symbol: "BCO", Date: "30 Sep 2025", Close: fig("67.5")}}},
		{Symbol: "LSI Daily", Data: []historical.Item{{ID: 100, Date: "2025-09-30"}}},
	}}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	s := NewServer(0, deps, nil)
	s.now = func() time.Time { return time.Date(2025, 9, 30, 8, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestMarketAndLive(t *testing.T) {
	srv := newTestServer(t, Deps{Quotes: fakeQuotes{}, Live: fakeLive{}})

	var qs []quotes.Quote
	if code := getJSON(t, srv.URL+"/api/market", &qs); code != 200 || len(qs) != 3 {
		t.Fatalf("unexpected /api/market %d %v", code, qs)
	}

	var snap market.Snapshot
	if code := getJSON(t, srv.URL+"/api/market/live", &snap); code != 200 || len(snap.Table) != 1 {
		t.Fatalf("unexpected live snapshot %d %+v", code, snap)
	}

	var health map[string]any
	if code := getJSON(t, srv.URL+"/health", &health); code != 200 || health["status"] != "healthy" {
		t.Fatalf("unexpected health %d %v", code, health)
	}

	resp, err := http.Post(srv.URL+"/api/market", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHistorical_DefaultInstrumentAndPaging(t *testing.T) {
	srv := newTestServer(t, Deps{Historical: fakeHistory{resp: history()}})

	var page historicalPage
	if code := getJSON(t, srv.URL+"/api/historical", &page); code != 200 {
		t.Fatalf("status %d", code)
	}
	if page.Instrument != "LGD Daily" || page.Total != 10 || page.TotalPages != 2 || len(page.Rows) != historical.PageSize {
		t.Errorf("unexpected page %+v", page)
	}
	for _, name := range page.Instruments {
		if historical.Blocked(name) {
			t.Errorf("blocked instrument %q listed", name)
		}
	}

	getJSON(t, srv.URL+"/api/historical?page=2", &page)
	if page.Page != 2 || len(page.Rows) != 2 {
		t.Errorf("unexpected second page %d/%d", page.Page, len(page.Rows))
	}

	getJSON(t, srv.URL+"/api/historical?instrument=BCO%20Daily", &page)
	if page.Total != 1 || page.Rows[0].DisplayDate != "30 Sep 2025" {
		t.Errorf("unexpected BCO page %+v", page)
	}

	getJSON(t, srv.URL+"/api/historical?instrument=", &page)
	if page.Total != 11 {
		t.Errorf("empty instrument should select everything, got %d", page.Total)
	}
}

func TestHistorical_UpstreamFailure(t *testing.T) {
	srv := newTestServer(t, Deps{Historical: fakeHistory{err: errors.New("boom")}})
	var body map[string]string
	if code := getJSON(t, srv.URL+"/api/historical", &body); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if body["error"] != msgHistoricalFailed {
		t.Errorf("unexpected message %q", body["error"])
	}
}

func TestHistorical_Export(t *testing.T) {
	srv := newTestServer(t, Deps{Historical: fakeHistory{resp: history()}})

	resp, err := http.Get(srv.URL + "/api/historical/export?filtered=true&instrument=BCO%20Daily")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "historical-data-2025-09-30.csv") {
		t.Errorf("unexpected disposition %q", cd)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,Symbol,Open,High,Low,Close,Change,Volume\n30 Sep 2025,BCO,,,,67.5,,\n"
	if string(b) != want {
		t.Errorf("unexpected csv %q", b)
	}

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/historical/export?filtered=true&instrument=Nothing", &body)
	if code != http.StatusNotFound || body["error"] != msgNoDownloadData {
		t.Errorf("expected no-data error, got %d %v", code, body)
	}
}

func TestNewsAndCalendar(t *testing.T) {
	fn := &fakeNews{}
	srv := newTestServer(t, Deps{News: fn, Calendar: fakeCalendar{}})

	var items []news.Item
	if code := getJSON(t, srv.URL+"/api/news?limit=5", &items); code != 200 || len(items) != 1 || fn.gotLimit.Load() != 5 {
		t.Fatalf("unexpected news %d %v limit=%d", code, items, fn.gotLimit.Load())
	}

	var cal struct {
		Filter string           `json:"filter"`
		Events []calendar.Event `json:"events"`
	}
	if code := getJSON(t, srv.URL+"/api/calendar?filter=thisWeek", &cal); code != 200 || cal.Filter != "this-week" || len(cal.Events) != 1 {
		t.Fatalf("unexpected calendar %d %+v", code, cal)
	}

	bad := newTestServer(t, Deps{Calendar: fakeCalendar{err: calendar.ErrUpstream}})
	var body map[string]string
	if code := getJSON(t, bad.URL+"/api/calendar", &body); code != http.StatusBadGateway || body["error"] != msgCalendarFailed {
		t.Errorf("expected 502, got %d %v", code, body)
	}
}
