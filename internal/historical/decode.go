// Package historical fetches daily OHLC history and normalizes the two shapes
// the endpoint has served over time into one grouped form.
package historical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownShape is returned for bodies that are neither the grouped object
// nor a flat row array.
var ErrUnknownShape = errors.New("historical: unrecognized response shape")

const unknownSymbol = "UNKNOWN"

// Figure is a numeric column that may arrive as a JSON number or as an
// already formatted string. The text is kept exactly as received so that
// values are never re-rounded.
type Figure struct {
	Text  string
	Valid bool
}

func (f *Figure) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = Figure{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Figure{Text: s, Valid: true}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			// booleans, objects and arrays carry no figure
			*f = Figure{}
			return nil
		}
		*f = Figure{Text: n.String(), Valid: true}
	}
	return nil
}

func (f Figure) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Text)
}

func (f Figure) String() string { return f.Text }

// Decimal parses the figure, ignoring thousands separators.
func (f Figure) Decimal() (decimal.Decimal, bool) {
	if !f.Valid {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(f.Text), ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Item is one daily bar.
type Item struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`
	Date         string  `json:"date"`
	Event        *string `json:"event"`
	Open         Figure  `json:"open"`
	High         Figure  `json:"high"`
	Low          Figure  `json:"low"`
	Close        Figure  `json:"close"`
	Change       Figure  `json:"change"`
	Volume       Figure  `json:"volume"`
	OpenInterest Figure  `json:"openInterest"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

// UnmarshalJSON accepts ids and text fields in whatever form the endpoint
// sends them. An id that is not a number, or a number with a fraction, reads
// as its integer part or 0.
func (it *Item) UnmarshalJSON(b []byte) error {
	type plain Item
	var aux struct {
		plain
		ID        Figure `json:"id"`
		Symbol    any    `json:"symbol"`
		Date      any    `json:"date"`
		Event     any    `json:"event"`
		CreatedAt any    `json:"createdAt"`
		UpdatedAt any    `json:"updatedAt"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*it = Item(aux.plain)
	if d, ok := aux.ID.Decimal(); ok {
		it.ID = d.IntPart()
	}
	it.Symbol = looseText(aux.Symbol)
	it.Date = looseText(aux.Date)
	it.CreatedAt = looseText(aux.CreatedAt)
	it.UpdatedAt = looseText(aux.UpdatedAt)
	if aux.Event != nil {
		ev := looseText(aux.Event)
		it.Event = &ev
	}
	return nil
}

// Group holds every bar of one instrument.
type Group struct {
	Symbol    string `json:"symbol"`
	Data      []Item `json:"data"`
	UpdatedAt string `json:"updatedAt"`
}

func (g *Group) UnmarshalJSON(b []byte) error {
	type plain Group
	var aux struct {
		plain
		Symbol    any               `json:"symbol"`
		UpdatedAt any               `json:"updatedAt"`
		Data      []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*g = Group(aux.plain)
	g.Symbol = looseText(aux.Symbol)
	g.UpdatedAt = looseText(aux.UpdatedAt)
	g.Data = decodeItems(aux.Data)
	return nil
}

// decodeItems keeps every element that decodes as a bar and drops the rest.
func decodeItems(raws []json.RawMessage) []Item {
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		var it Item
		if !isObject(raw) || json.Unmarshal(raw, &it) != nil {
			continue
		}
		items = append(items, it)
	}
	return items
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// looseText renders a scalar JSON value as text; objects, arrays and null are "".
func looseText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

type Response struct {
	Status       string  `json:"status"`
	TotalSymbols int     `json:"totalSymbols"`
	Data         []Group `json:"data"`
}

// Shape tags the wire form a body was decoded from.
type Shape int

const (
	ShapeGrouped Shape = iota + 1
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeGrouped:
		return "grouped"
	case ShapeFlat:
		return "flat"
	}
	return "unknown"
}

// Decode detects the shape of body and normalizes it. An object with both
// "status" and "data" is the grouped form; a top-level array is flat rows.
func Decode(body []byte) (Response, Shape, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Response{}, 0, ErrUnknownShape
	}

	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Response{}, 0, fmt.Errorf("decode historical object: %w", err)
		}
		_, hasStatus := fields["status"]
		_, hasData := fields["data"]
		if !hasStatus || !hasData {
			return Response{}, 0, ErrUnknownShape
		}
		return groupedResponse(fields), ShapeGrouped, nil

	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return Response{}, 0, fmt.Errorf("decode flat historical: %w", err)
		}
		return groupFlat(rows), ShapeFlat, nil
	}
	return Response{}, 0, ErrUnknownShape
}

// groupedResponse decodes the grouped form field by field. Groups that are not
// objects or fail to decode are dropped; a "data" that is not an array yields
// no groups.
func groupedResponse(fields map[string]json.RawMessage) Response {
	var status any
	_ = json.Unmarshal(fields["status"], &status)
	resp := Response{Status: looseText(status)}

	var total Figure
	if raw, ok := fields["totalSymbols"]; ok {
		_ = json.Unmarshal(raw, &total)
	}

	var raws []json.RawMessage
	_ = json.Unmarshal(fields["data"], &raws)
	for _, raw := range raws {
		var g Group
		if !isObject(raw) || json.Unmarshal(raw, &g) != nil {
			continue
		}
		resp.Data = append(resp.Data, g)
	}

	if d, ok := total.Decimal(); ok && d.IntPart() > 0 {
		resp.TotalSymbols = int(d.IntPart())
	} else {
		resp.TotalSymbols = len(resp.Data)
	}
	return resp
}

// symbolKeys is the order in which a flat row names its instrument.
var symbolKeys = []string{"symbol", "category", "instrument"}

func groupFlat(rows []json.RawMessage) Response {
	var groups []Group
	index := make(map[string]int)

	for _, raw := range rows {
		var names map[string]any
		if err := json.Unmarshal(raw, &names); err != nil || names == nil {
			continue
		}
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}

		key := unknownSymbol
		for _, k := range symbolKeys {
			if s := strings.TrimSpace(looseText(names[k])); s != "" {
				key = s
				break
			}
		}
		if strings.TrimSpace(it.Symbol) == "" {
			it.Symbol = key
		}

		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, Group{Symbol: key})
		}
		g := &groups[gi]
		g.Data = append(g.Data, it)
		if it.UpdatedAt > g.UpdatedAt {
			g.UpdatedAt = it.UpdatedAt
		}
	}

	return Response{Status: "success", TotalSymbols: len(groups), Data: groups}
}
