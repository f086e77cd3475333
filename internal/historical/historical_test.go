package historical

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quotedesk/internal/cache"
)

const flatBody = `[
	{"id":1,"symbol":"LGD Daily","date":"30 Sep 2025","open":"3,850.10","high":3870.5,"low":3840,"close":"3,861.00","change":"+0.3%","volume":null},
	{"id":2,"symbol":"LGD Daily","date":"2025-09-29","open":3840,"high":3855,"low":3830,"close":3850.1},
	{"id":3,"category":"BCO Daily","date":"2025-09-30T00:00:00Z","open":67.1,"high":67.9,"low":66.8,"close":67.5}
]`

func TestDecode_FlatGroupsBySymbol(t *testing.T) {
	resp, shape, err := Decode([]byte(flatBody))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if shape != ShapeFlat {
		t.Errorf("expected flat shape, got %s", shape)
	}
	if len(resp.Data) != 2 || resp.TotalSymbols != 2 {
		t.Fatalf("expected 2 groups, got %d (total %d)", len(resp.Data), resp.TotalSymbols)
	}
	if resp.Data[0].Symbol != "LGD Daily" || len(resp.Data[0].Data) != 2 {
		t.Errorf("unexpected first group %s/%d", resp.Data[0].Symbol, len(resp.Data[0].Data))
	}
	if resp.Data[1].Symbol != "BCO Daily" || len(resp.Data[1].Data) != 1 {
		t.Errorf("unexpected second group %s/%d", resp.Data[1].Symbol, len(resp.Data[1].Data))
	}

	first := resp.Data[0].Data[0]
	if first.Open.Text != "3,850.10" || first.High.Text != "3870.5" {
		t.Errorf("figures should keep their wire text, got open=%q high=%q", first.Open.Text, first.High.Text)
	}
	if first.Volume.Valid {
		t.Errorf("null volume should be invalid")
	}
	if d, ok := first.Open.Decimal(); !ok || d.String() != "3850.1" {
		t.Errorf("unexpected decimal %v %v", d, ok)
	}
}

func TestDecode_FlatFallsBackToUnknown(t *testing.T) {
	resp, _, err := Decode([]byte(`[{"instrument":"HSI Daily","date":"x"},{"date":"y"},{"symbol":"  ","date":"z"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 || resp.Data[0].Symbol != "HSI Daily" || resp.Data[1].Symbol != "UNKNOWN" {
		t.Fatalf("unexpected groups %+v", resp.Data)
	}
	if len(resp.Data[1].Data) != 2 {
		t.Errorf("expected blank symbol to land in UNKNOWN")
	}
	for _, it := range resp.Data[1].Data {
		if it.Symbol != "UNKNOWN" {
			t.Errorf("row symbol should follow its group, got %q", it.Symbol)
		}
	}
}

func TestDecode_LenientFields(t *testing.T) {
	flat := `[
		{"id":"7","symbol":"LGD Daily","date":"2025-09-30","close":"3850"},
		{"id":1.0,"symbol":"LGD Daily","date":"2025-09-29","close":3840,"event":5},
		{"id":"n/a","symbol":"LGD Daily","date":"2025-09-28","open":{"x":1},"close":true},
		"not a row",
		null
	]`
	resp, shape, err := Decode([]byte(flat))
	if err != nil {
		t.Fatal(err)
	}
	if shape != ShapeFlat || len(resp.Data) != 1 || len(resp.Data[0].Data) != 3 {
		t.Fatalf("unexpected %s %+v", shape, resp.Data)
	}
	rows := resp.Data[0].Data
	if rows[0].ID != 7 || rows[1].ID != 1 || rows[2].ID != 0 {
		t.Errorf("unexpected ids %d %d %d", rows[0].ID, rows[1].ID, rows[2].ID)
	}
	if rows[1].Event == nil || *rows[1].Event != "5" {
		t.Errorf("numeric event should read as text, got %v", rows[1].Event)
	}
	if rows[2].Open.Valid || rows[2].Close.Valid {
		t.Errorf("non-numeric figures should be invalid")
	}

	grouped := `{"status":"success","data":[
		{"symbol":"BCO Daily","data":[{"id":"12","date":"30 Sep 2025","close":"67.5"},{"id":3.0,"symbol":42,"date":"29 Sep 2025"},"junk"]},
		"junk group"
	]}`
	resp, shape, err = Decode([]byte(grouped))
	if err != nil {
		t.Fatal(err)
	}
	if shape != ShapeGrouped || len(resp.Data) != 1 || resp.TotalSymbols != 1 {
		t.Fatalf("unexpected %s %+v", shape, resp)
	}
	items := resp.Data[0].Data
	if len(items) != 2 || items[0].ID != 12 || items[1].ID != 3 || items[1].Symbol != "42" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestDecode_Grouped(t *testing.T) {
	body := `{"status":"success","totalSymbols":1,"data":[{"symbol":"USD/JPY","updatedAt":"2025-09-30","data":[{"id":9,"symbol":"UJ","date":"2025-09-30","open":148.1,"high":148.9,"low":147.7,"close":148.5,"change":null,"volume":1200}]}]}`
	resp, shape, err := Decode([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if shape != ShapeGrouped || resp.Status != "success" || len(resp.Data) != 1 {
		t.Fatalf("unexpected %s %+v", shape, resp)
	}
	if resp.Data[0].Data[0].Volume.Text != "1200" {
		t.Errorf("unexpected volume %q", resp.Data[0].Data[0].Volume.Text)
	}
}

func TestDecode_UnknownShapes(t *testing.T) {
	for _, body := range []string{``, `"x"`, `42`, `{"data":[]}`, `{"status":"ok"}`} {
		if _, _, err := Decode([]byte(body)); !errors.Is(err, ErrUnknownShape) {
			t.Errorf("%q: expected ErrUnknownShape, got %v", body, err)
		}
	}
}

func TestDateKey(t *testing.T) {
	if a, b := DateKey("30 Sep 2025"), DateKey("2025-09-30"); a != "2025-09-30" || a != b {
		t.Errorf("expected equal keys, got %q and %q", a, b)
	}
	cases := map[string]string{
		"2025-9-3":             "2025-09-03",
		"2025-09-30T17:00:00Z": "2025-09-30",
		"1 Jan 2024":           "2024-01-01",
		"31 Feb 2025":          "",
		"30 sep 2025":          "",
		"yesterday":            "",
		"":                     "",
	}
	for in, want := range cases {
		if got := DateKey(in); got != want {
			t.Errorf("DateKey(%q) = %q, want %q", in, got, want)
		}
	}
	if got := DisplayDate("2025-09-03"); got != "03 Sep 2025" {
		t.Errorf("got %q", got)
	}
	if got := DisplayDate("n/a"); got != "n/a" {
		t.Errorf("unparseable dates should render unchanged, got %q", got)
	}
}

func TestDateFrom(t *testing.T) {
	cases := map[time.Time]string{
		time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC): "2025-07-01",
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC):   "2024-11-01",
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC):   "2024-12-01",
	}
	for now, want := range cases {
		if got := DateFrom(now); got != want {
			t.Errorf("DateFrom(%s) = %s, want %s", now.Format(time.DateOnly), got, want)
		}
	}
}

func sampleResponse() Response {
	return Response{Status: "success", Data: []Group{
		{Symbol: "EUR/USD", Data: []Item{{Date: "2025-09-28"}}},
		{Symbol: " lsi  daily ", Data: []Item{{Date: "2025-09-30"}}},
		{Symbol: "Zinc", Data: []Item{{Date: "2025-09-27"}}},
		{Symbol: "LGD Daily", Data: []Item{
			{ID: 1, Date: "29 Sep 2025"},
			{ID: 2, Date: "2025-09-30"},
			{ID: 3, Date: "someday"},
		}},
		{Symbol: "LSI", Data: []Item{{Date: "2025-09-30"}}},
		{Symbol: "Alum", Data: []Item{{Date: "2025-09-26"}}},
	}}
}

func TestDataset_BlocksAndOrders(t *testing.T) {
	d := NewDataset(sampleResponse())

	want := []string{"LGD Daily", "EUR/USD", "Alum", "Zinc"}
	got := d.Instruments()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instrument %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if d.Default() != "LGD Daily" {
		t.Errorf("unexpected default %s", d.Default())
	}
	for _, r := range d.Rows() {
		if Blocked(r.Category) {
			t.Errorf("blocked instrument %q leaked into rows", r.Category)
		}
	}

	rows := d.Rows()
	if rows[0].ID != 2 || rows[1].ID != 1 {
		t.Errorf("expected newest first, got ids %d,%d", rows[0].ID, rows[1].ID)
	}
	if rows[len(rows)-1].DateKey != "" {
		t.Errorf("unparseable dates should sort last")
	}
}

func TestDataset_DefaultWithoutLGD(t *testing.T) {
	d := NewDataset(Response{Data: []Group{{Symbol: "Zinc"}, {Symbol: "USD/JPY"}}})
	if d.Default() != "USD/JPY" {
		t.Errorf("expected first ordered instrument, got %s", d.Default())
	}
	if NewDataset(Response{}).Default() != "" {
		t.Errorf("empty dataset should have no default")
	}
}

func TestDataset_Filter(t *testing.T) {
	d := NewDataset(sampleResponse())

	rows := d.Filter(Query{Instrument: "LGD Daily", From: "30 Sep 2025", To: "2025-09-30"})
	if len(rows) != 2 {
		t.Fatalf("expected the 30th plus the undated row, got %d", len(rows))
	}
	if rows[0].ID != 2 || rows[1].ID != 3 {
		t.Errorf("unexpected rows %d,%d", rows[0].ID, rows[1].ID)
	}

	if n := len(d.Filter(Query{})); n != len(d.Rows()) {
		t.Errorf("empty query should return everything, got %d", n)
	}
	if n := len(d.Filter(Query{Instrument: "LSI"})); n != 0 {
		t.Errorf("blocked instrument should never match, got %d", n)
	}
}

func TestPage(t *testing.T) {
	rows := make([]Row, 19)
	for i := range rows {
		rows[i].ID = int64(i)
	}
	page, total := Page(rows, 3)
	if total != 3 || len(page) != 3 || page[0].ID != 16 {
		t.Errorf("unexpected last page: total=%d len=%d", total, len(page))
	}
	page, _ = Page(rows, 0)
	if page[0].ID != 0 || len(page) != PageSize {
		t.Errorf("page 0 should clamp to first page")
	}
	page, total = Page(nil, 1)
	if total != 0 || len(page) != 0 {
		t.Errorf("empty input should have no pages")
	}
}

func TestClient_FetchSendsTokenAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("dateFrom"); got != "2025-07-01" {
			t.Errorf("unexpected dateFrom %q", got)
		}
		_, _ = w.Write([]byte(flatBody))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Token: "secret", CacheTTL: time.Minute}, srv.Client(), cache.NewMemory(), nil)
	c.now = func() time.Time { return time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		resp, err := c.Fetch(context.Background())
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(resp.Data) != 2 {
			t.Fatalf("fetch %d: expected 2 groups, got %d", i, len(resp.Data))
		}
	}
	if hits.Load() != 1 {
		t.Errorf("second fetch should come from cache, upstream hit %d times", hits.Load())
	}
}

func TestClient_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dateFrom") == "" {
			t.Error("missing dateFrom")
		}
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, srv.Client(), nil, nil)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	defer bad.Close()
	c = NewClient(Config{URL: bad.URL}, bad.Client(), nil, nil)
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("expected ErrUnknownShape, got %v", err)
	}
}
