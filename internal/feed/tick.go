package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Tick is one instrument snapshot as delivered by the feed.
type Tick struct {
	Symbol        string   `json:"symbol"`
	Last          float64  `json:"last"`
	PercentChange float64  `json:"percentChange"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Buy           *float64 `json:"buy"`
	Sell          *float64 `json:"sell"`
}

// Wire field names of a snapshot entry. All of them arrive as strings.
const (
	fieldPrice       = "price"
	fieldBuy         = "buy"
	fieldSell        = "sell"
	fieldOpen        = "oprice"
	fieldHigh        = "hprice"
	fieldLow         = "lprice"
	fieldPriceChange = "price_change"
)

// hiddenSymbols never leave the parser.
var hiddenSymbols = map[string]struct{}{
	"XAG10_BBJ": {},
	"XAGF_BBJ":  {},
}

// ParseSnapshot decodes one socket message. The payload is a JSON object keyed
// by raw symbol; key order is preserved because it decides ties further down
// the pipeline. It returns nil for anything that is not a non-empty object, or
// when every entry was filtered out.
func ParseSnapshot(raw []byte) []Tick {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var ticks []Tick
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		symbol, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		item, ok := value.(map[string]any)
		if symbol == "" || !ok {
			continue
		}
		if _, hidden := hiddenSymbols[symbol]; hidden {
			continue
		}
		ticks = append(ticks, tickFrom(symbol, item))
	}
	// closing brace, then nothing else
	if _, err := dec.Token(); err != nil {
		return nil
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil
	}

	if len(ticks) == 0 {
		return nil
	}
	return ticks
}

func tickFrom(symbol string, item map[string]any) Tick {
	last := Number(item[fieldPrice])
	if last == 0 {
		last = Number(item[fieldBuy])
	}
	if last == 0 {
		last = Number(item[fieldSell])
	}
	return Tick{
		Symbol:        symbol,
		Last:          last,
		PercentChange: PercentChange(item[fieldPriceChange], item[fieldPrice], item[fieldOpen]),
		Open:          NumberOrNil(item[fieldOpen]),
		High:          NumberOrNil(item[fieldHigh]),
		Low:           NumberOrNil(item[fieldLow]),
		Buy:           NumberOrNil(item[fieldBuy]),
		Sell:          NumberOrNil(item[fieldSell]),
	}
}

// PercentChange prefers the vendor's own change figure and otherwise derives it
// from price and open. It is 0, never NaN or Inf, when open is missing or zero.
func PercentChange(direct, price, open any) float64 {
	if v := NumberOrNil(direct); v != nil {
		return *v
	}
	p := NumberOrNil(price)
	o := NumberOrNil(open)
	if p == nil || o == nil || *o == 0 {
		return 0
	}
	pct := (*p - *o) / *o * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

// Number coerces a wire value, falling back to 0.
func Number(v any) float64 {
	if f, ok := coerce(v); ok {
		return f
	}
	return 0
}

// NumberOrNil coerces a wire value, returning nil when it has no numeric reading.
func NumberOrNil(v any) *float64 {
	if f, ok := coerce(v); ok {
		return &f
	}
	return nil
}

func coerce(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(t)
	case json.Number:
		return parseNumeric(t.String())
	case string:
		return parseNumeric(t)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// parseNumeric strips thousands separators. A blank string reads as zero.
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return finite(d.InexactFloat64())
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
