package view

import (
	"quotedesk/internal/feed"
	"quotedesk/internal/symbols"
)

// Row is one line of the live quotes table.
type Row struct {
	Symbol        string    `json:"symbol"`
	Display       string    `json:"display"`
	Currency      string    `json:"currency"`
	Last          float64   `json:"last"`
	PercentChange float64   `json:"percentChange"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Buy           *float64  `json:"buy"`
	Sell          *float64  `json:"sell"`
	Direction     Direction `json:"direction"`
	Formatted     RowText   `json:"formatted"`
}

type RowText struct {
	Buy    string `json:"buy"`
	Sell   string `json:"sell"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Last   string `json:"last"`
	Change string `json:"change"`
}

// TableMapper remembers the previous last price per canonical base.
type TableMapper struct {
	tbl  *symbols.Table
	prev map[string]float64
}

func NewTableMapper(tbl *symbols.Table) *TableMapper {
	return &TableMapper{tbl: tbl}
}

func (m *TableMapper) Map(ticks []feed.Tick) []Row {
	sel := m.tbl.Group(ticks)
	rows := make([]Row, 0, len(sel))
	for _, s := range sel {
		t := s.Tick
		var dir Direction
		m.prev, dir = Diff(m.prev, s.Base, t.Last)

		symbol := m.tbl.CanonicalFull(t.Symbol)
		last := t.Last
		rows = append(rows, Row{
			Symbol:        symbol,
			Display:       DisplaySymbol(symbol),
			Currency:      Currency(symbol),
			Last:          last,
			PercentChange: t.PercentChange,
			Open:          t.Open,
			High:          t.High,
			Low:           t.Low,
			Buy:           t.Buy,
			Sell:          t.Sell,
			Direction:     dir,
			Formatted: RowText{
				Buy:    FormatPrice(symbol, t.Buy),
				Sell:   FormatPrice(symbol, t.Sell),
				Open:   FormatPrice(symbol, t.Open),
				High:   FormatPrice(symbol, t.High),
				Low:    FormatPrice(symbol, t.Low),
				Last:   FormatPrice(symbol, &last),
				Change: FormatChange(t.PercentChange),
			},
		})
	}
	return rows
}

// Seen reports whether any tick was ever mapped.
func (m *TableMapper) Seen() bool { return len(m.prev) > 0 }

// Card is one tile of the market card grid.
type Card struct {
	Symbol        string    `json:"symbol"`
	Label         string    `json:"label"`
	Currency      string    `json:"currency"`
	Last          float64   `json:"last"`
	PercentChange float64   `json:"percentChange"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Direction     Direction `json:"direction"`
	Price         string    `json:"price"`
	OpenText      string    `json:"openText"`
	LowText       string    `json:"lowText"`
	Change        string    `json:"change"`
}

// CardMapper tracks direction per canonical full symbol, so the same base
// quoted in two currencies moves independently. Bases without a label are
// not shown as cards.
type CardMapper struct {
	tbl  *symbols.Table
	prev map[string]float64
}

func NewCardMapper(tbl *symbols.Table) *CardMapper {
	return &CardMapper{tbl: tbl}
}

func (m *CardMapper) Map(ticks []feed.Tick) []Card {
	sel := m.tbl.Group(ticks)
	cards := make([]Card, 0, len(sel))
	for _, s := range sel {
		label, ok := m.tbl.Label(s.Base)
		if !ok {
			continue
		}
		t := s.Tick
		symbol := m.tbl.CanonicalFull(t.Symbol)
		var dir Direction
		m.prev, dir = Diff(m.prev, symbol, t.Last)

		last := t.Last
		cards = append(cards, Card{
			Symbol:        symbol,
			Label:         label,
			Currency:      Currency(symbol),
			Last:          last,
			PercentChange: t.PercentChange,
			Open:          t.Open,
			High:          t.High,
			Low:           t.Low,
			Direction:     dir,
			Price:         FormatPrice(symbol, &last),
			OpenText:      FormatPrice(symbol, t.Open),
			LowText:       FormatPrice(symbol, t.Low),
			Change:        FormatChange(t.PercentChange),
		})
	}
	return cards
}

// TickerItem is one entry of the scrolling marquee.
type TickerItem struct {
	Symbol        string    `json:"symbol"`
	Last          float64   `json:"last"`
	PercentChange float64   `json:"percentChange"`
	Direction     Direction `json:"direction"`
	Price         string    `json:"price"`
	Change        string    `json:"change"`
}

// TickerMapper passes every tick through in arrival order with raw symbols.
type TickerMapper struct {
	tbl  *symbols.Table
	prev map[string]float64
}

func NewTickerMapper(tbl *symbols.Table) *TickerMapper {
	return &TickerMapper{tbl: tbl}
}

func (m *TickerMapper) Map(ticks []feed.Tick) []TickerItem {
	items := make([]TickerItem, 0, len(ticks))
	for _, t := range ticks {
		if t.Symbol == "" {
			continue
		}
		var dir Direction
		m.prev, dir = Diff(m.prev, t.Symbol, t.Last)
		items = append(items, TickerItem{
			Symbol:        t.Symbol,
			Last:          t.Last,
			PercentChange: t.PercentChange,
			Direction:     dir,
			Price:         FormatTickerPrice(m.tbl, t.Symbol, t.Last),
			Change:        FormatSignedPercent(t.PercentChange),
		})
	}
	return items
}
