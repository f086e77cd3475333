// Package news reads the latest articles from the news portal.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal/cache"
)

const (
	DefaultURL   = "https://portalnews.newsmaker.id/api/v1/berita"
	DefaultLimit = 3
	cacheTTL     = time.Minute
	mainImageIdx = 4
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Titles struct {
	Default string `json:"default"`
	SG      string `json:"sg,omitempty"`
	RFB     string `json:"rfb,omitempty"`
	KPF     string `json:"kpf"`
	EWF     string `json:"ewf,omitempty"`
	BPF     string `json:"bpf,omitempty"`
}

type Item struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Titles     *Titles   `json:"titles,omitempty"`
	Slug       string    `json:"slug"`
	Content    string    `json:"content"`
	CategoryID int64     `json:"category_id"`
	Kategori   *Category `json:"kategori,omitempty"`
	Images     []string  `json:"images"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
}

type listResponse struct {
	Data []Item `json:"data"`
}

type Config struct {
	URL   string
	Token string
}

type Client struct {
	cfg   Config
	http  *http.Client
	store cache.Store
	log   *zap.Logger
}

func NewClient(cfg Config, store cache.Store, log *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}, store: store, log: log}
}

// Latest returns up to limit newest articles. Failures yield an empty list.
func (c *Client) Latest(ctx context.Context, limit int) []Item {
	if limit <= 0 {
		limit = DefaultLimit
	}
	key := "news:latest:" + strconv.Itoa(limit)

	if c.store != nil {
		if b, ok, err := c.store.Get(ctx, key); err == nil && ok {
			var items []Item
			if json.Unmarshal(b, &items) == nil {
				return items
			}
		}
	}

	items, err := c.fetch(ctx, limit)
	if err != nil {
		c.log.Warn("news fetch failed", zap.Error(err))
		return []Item{}
	}
	for i := range items {
		items[i] = present(items[i])
	}

	if c.store != nil {
		if b, err := json.Marshal(items); err == nil {
			if err := c.store.Set(ctx, key, b, cacheTTL); err != nil {
				c.log.Warn("news cache write failed", zap.Error(err))
			}
		}
	}
	return items
}

func (c *Client) fetch(ctx context.Context, limit int) ([]Item, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("news url: %w", err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("sort_by", "created_at")
	q.Set("order", "desc")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("news http %d", resp.StatusCode)
	}
	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	if body.Data == nil {
		return []Item{}, nil
	}
	return body.Data, nil
}

// present picks the brand title and keeps a single main image: the fifth
// when there is one, else the first.
func present(it Item) Item {
	if it.Titles != nil {
		switch {
		case it.Titles.BPF != "":
			it.Title = it.Titles.BPF
		case it.Titles.EWF != "":
			it.Title = it.Titles.EWF
		}
	}
	switch {
	case len(it.Images) > mainImageIdx:
		it.Images = []string{it.Images[mainImageIdx]}
	case len(it.Images) > 0:
		it.Images = it.Images[:1]
	default:
		it.Images = []string{}
	}
	return it
}
