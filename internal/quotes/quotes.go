// Package quotes proxies the vendor's REST quote list for the market page.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal/feed"
)

const (
	DefaultURL     = "https://endpoapi-production-3202.up.railway.app/api/quotes"
	DefaultTimeout = 5 * time.Second
)

type Quote struct {
	Symbol        string  `json:"symbol"`
	Last          float64 `json:"last"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	Time          string  `json:"time,omitempty"`
	PrevClose     float64 `json:"prevClose"`
	ValueChange   float64 `json:"valueChange"`
	PercentChange float64 `json:"percentChange"`
	Volume        float64 `json:"Volume"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
}

// Sample is served whenever the upstream list is unavailable or empty.
func Sample() []Quote {
	return []Quote{
		{Symbol: "Gold", Last: 4037.75, High: 4041.23, Low: 4001.8, Open: 4020.8, PrevClose: 4040.4, ValueChange: -2.65, PercentChange: -0.07},
		{Symbol: "Silver", Last: 49.109, High: 49.133, Low: 48.498, Open: 49.002, PrevClose: 48.842, ValueChange: 0.267, PercentChange: 0.55},
		{Symbol: "USD/IDR", Last: 16528, High: 16574, Low: 16496, Open: 16574, PrevClose: 16575, ValueChange: -47, PercentChange: -0.28},
	}
}

type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewClient(url string, timeout time.Duration, log *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}, log: log, now: time.Now}
}

// Latest never fails: any upstream problem yields Sample().
func (c *Client) Latest(ctx context.Context) []Quote {
	qs, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("quotes upstream failed, serving sample data", zap.Error(err))
		return Sample()
	}
	if len(qs) == 0 {
		c.log.Warn("quotes upstream returned no usable items, serving sample data")
		return Sample()
	}
	return qs
}

func (c *Client) fetch(ctx context.Context) ([]Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quotes request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("quotes http %d", resp.StatusCode)
	}

	var payload struct {
		Data []any `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("quotes payload has no data array")
	}

	out := make([]Quote, 0, len(payload.Data))
	for _, el := range payload.Data {
		item, ok := el.(map[string]any)
		if !ok {
			continue
		}
		symbol := symbolOf(item["symbol"])
		if symbol == "" {
			continue
		}
		ts, _ := item["time"].(string)
		if ts == "" {
			ts = c.now().UTC().Format(time.RFC3339Nano)
		}
		out = append(out, Quote{
			Symbol:        strings.Replace(symbol, "USD/IDR", "IDR", 1),
			Last:          feed.Number(item["last"]),
			High:          feed.Number(item["high"]),
			Low:           feed.Number(item["low"]),
			Open:          feed.Number(item["open"]),
			Time:          ts,
			PrevClose:     feed.Number(item["prevClose"]),
			ValueChange:   feed.Number(item["valueChange"]),
			PercentChange: feed.Number(item["percentChange"]),
			Volume:        feed.Number(item["Volume"]),
			Bid:           feed.Number(item["bid"]),
			Ask:           feed.Number(item["ask"]),
		})
	}
	return out, nil
}

func symbolOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		if s.String() == "0" {
			return ""
		}
		return s.String()
	}
	return ""
}
