package historical

import (
	"sort"
	"strings"
	"unicode"
)

const (
	PageSize          = 8
	DefaultInstrument = "LGD Daily"
)

// instrumentOrder fixes the picklist head; everything else follows alphabetically.
var instrumentOrder = []string{
	"LGD Daily",
	"BCO Daily",
	"HSI Daily",
	"SNI Daily",
	"USD/CHF",
	"USD/JPY",
	"GBP/USD",
	"AUD/USD",
	"EUR/USD",
}

// blocked instruments, compared after folding case and dropping whitespace.
var blocked = map[string]struct{}{
	"lsi":      {},
	"lsidaily": {},
}

func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// Blocked reports whether an instrument name is on the block-list.
func Blocked(name string) bool {
	_, ok := blocked[foldName(name)]
	return ok
}

// Row is a bar tagged with its instrument and normalized date.
type Row struct {
	Item
	Category string `json:"category"`
	DateKey  string `json:"dateKey"`
}

// Dataset is the flattened, block-filtered, newest-first view of a Response.
type Dataset struct {
	rows        []Row
	instruments []string
}

func NewDataset(resp Response) *Dataset {
	d := &Dataset{}
	seen := make(map[string]struct{})
	for _, g := range resp.Data {
		if Blocked(g.Symbol) {
			continue
		}
		if _, dup := seen[g.Symbol]; !dup {
			seen[g.Symbol] = struct{}{}
			d.instruments = append(d.instruments, g.Symbol)
		}
		for _, it := range g.Data {
			d.rows = append(d.rows, Row{Item: it, Category: g.Symbol, DateKey: DateKey(it.Date)})
		}
	}

	// unparseable dates sink to the end, keeping their relative order
	sort.SliceStable(d.rows, func(i, j int) bool {
		a, b := d.rows[i].DateKey, d.rows[j].DateKey
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a > b
	})
	sortInstruments(d.instruments)
	return d
}

func sortInstruments(names []string) {
	rank := make(map[string]int, len(instrumentOrder))
	for i, n := range instrumentOrder {
		rank[n] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		}
		return names[i] < names[j]
	})
}

func (d *Dataset) Instruments() []string {
	return append([]string(nil), d.instruments...)
}

// Default is "LGD Daily" when present, else the first instrument, else "".
func (d *Dataset) Default() string {
	for _, n := range d.instruments {
		if n == DefaultInstrument {
			return n
		}
	}
	if len(d.instruments) > 0 {
		return d.instruments[0]
	}
	return ""
}

// Rows returns every row, newest first.
func (d *Dataset) Rows() []Row {
	return append([]Row(nil), d.rows...)
}

// Query narrows rows by instrument and an inclusive date range. Empty fields
// do not filter. Bounds accept the same formats as ParseDate.
type Query struct {
	Instrument string
	From       string
	To         string
}

// Filter applies q. Rows whose date cannot be parsed are always in range.
func (d *Dataset) Filter(q Query) []Row {
	from, to := DateKey(q.From), DateKey(q.To)
	instrument := strings.TrimSpace(q.Instrument)

	out := make([]Row, 0, len(d.rows))
	for _, r := range d.rows {
		if instrument != "" && r.Category != instrument {
			continue
		}
		if r.DateKey != "" {
			if from != "" && r.DateKey < from {
				continue
			}
			if to != "" && r.DateKey > to {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Page returns the 1-based page n of rows and the total page count.
// n is clamped into range.
func Page(rows []Row, n int) ([]Row, int) {
	total := (len(rows) + PageSize - 1) / PageSize
	if total == 0 {
		return []Row{}, 0
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	start := (n - 1) * PageSize
	end := min(start+PageSize, len(rows))
	return rows[start:end], total
}
