// Package calendar reads the economic calendar and grades event impact.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://endpoapi-production-3202.up.railway.app/api/calendar"

// Filter selects the calendar window.
type Filter string

const (
	Today        Filter = "today"
	ThisWeek     Filter = "this-week"
	NextWeek     Filter = "next-week"
	PreviousWeek Filter = "previous-week"
)

// ParseFilter accepts both the path form ("this-week") and the camel form ("thisWeek").
// Unknown values fall back to Today.
func ParseFilter(s string) Filter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "this-week", "thisweek":
		return ThisWeek
	case "next-week", "nextweek":
		return NextWeek
	case "previous-week", "previousweek":
		return PreviousWeek
	}
	return Today
}

var ErrUpstream = errors.New("calendar: upstream did not report success")

type HistoryPoint struct {
	Date     string `json:"date,omitempty"`
	Previous string `json:"previous,omitempty"`
	Forecast string `json:"forecast,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

type Details struct {
	Sources       string         `json:"sources,omitempty"`
	Measures      string         `json:"measures,omitempty"`
	UsualEffect   string         `json:"usualEffect,omitempty"`
	Frequency     string         `json:"frequency,omitempty"`
	NextReleased  string         `json:"nextReleased,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	WhyTraderCare string         `json:"whyTraderCare,omitempty"`
	History       []HistoryPoint `json:"history,omitempty"`
}

type apiEvent struct {
	Time     string   `json:"time"`
	Currency string   `json:"currency"`
	Impact   string   `json:"impact"`
	Event    string   `json:"event"`
	Previous string   `json:"previous"`
	Forecast string   `json:"forecast"`
	Actual   string   `json:"actual"`
	Date     string   `json:"date"`
	Details  *Details `json:"details"`
}

type Event struct {
	ID          string   `json:"id"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Country     string   `json:"country"`
	Impact      string   `json:"impact"`
	ImpactLevel int      `json:"impactLevel"`
	ImpactLabel string   `json:"impactLabel"`
	Figures     string   `json:"figures"`
	Previous    string   `json:"previous,omitempty"`
	Forecast    string   `json:"forecast,omitempty"`
	Actual      string   `json:"actual,omitempty"`
	Details     *Details `json:"details,omitempty"`
}

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
		now:  time.Now,
	}
}

func (c *Client) Events(ctx context.Context, f Filter) ([]Event, error) {
	u := c.base + "/" + string(f)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("calendar http %d", resp.StatusCode)
	}

	var body struct {
		Status string     `json:"status"`
		Data   []apiEvent `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	if body.Status != "success" || body.Data == nil {
		return nil, ErrUpstream
	}

	fallback := c.now().Format(time.DateOnly)
	out := make([]Event, 0, len(body.Data))
	for i, e := range body.Data {
		date := e.Date
		if date == "" {
			date = fallback
		}
		impact := strings.TrimSpace(e.Impact)
		level := ImpactLevel(impact)
		out = append(out, Event{
			ID:          fmt.Sprintf("%s-%s-%d", f, date, i),
			Date:        date,
			Time:        NormalizeTime(e.Time),
			Country:     strings.TrimSpace(e.Currency),
			Impact:      impact,
			ImpactLevel: level,
			ImpactLabel: ImpactLabel(level),
			Figures:     e.Event,
			Previous:    e.Previous,
			Forecast:    e.Forecast,
			Actual:      e.Actual,
			Details:     e.Details,
		})
	}
	c.log.Debug("calendar fetched", zap.String("filter", string(f)), zap.Int("events", len(out)))
	return out, nil
}

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+`)

// NormalizeTime drops a "YYYY-MM-DD " prefix some windows put before the clock time.
func NormalizeTime(s string) string {
	return datePrefix.ReplaceAllString(s, "")
}

var (
	levelDigit = regexp.MustCompile(`\b([1-3])\b`)
	levelHigh  = regexp.MustCompile(`\bhigh\b`)
	levelMed   = regexp.MustCompile(`\b(medium|med)\b`)
	levelLow   = regexp.MustCompile(`\blow\b`)
)

// ImpactLevel grades an impact marker from 1 to 3. "?" marks win over "★"
// marks; otherwise a standalone digit, then a high/medium/low word anywhere
// in the text ("High Impact"). Blank input is 0; anything else is 1.
func ImpactLevel(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	if n := strings.Count(s, "?"); n > 0 {
		return min(n, 3)
	}
	if n := strings.Count(s, "★"); n > 0 {
		return min(n, 3)
	}
	if m := levelDigit.FindStringSubmatch(s); m != nil {
		return int(m[1][0] - '0')
	}
	lower := strings.ToLower(s)
	switch {
	case levelHigh.MatchString(lower):
		return 3
	case levelMed.MatchString(lower):
		return 2
	case levelLow.MatchString(lower):
		return 1
	}
	return 1
}

func ImpactLabel(level int) string {
	switch level {
	case 3:
		return "High"
	case 2:
		return "Medium"
	case 1:
		return "Low"
	}
	return "-"
}
