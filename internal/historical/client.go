package historical

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal/cache"
)

const (
	DefaultURL      = "https://endpoapi-production-3202.up.railway.app/api/historical"
	DefaultCacheTTL = 5 * time.Minute
	requestTimeout  = 10 * time.Second
	maxBody         = 32 << 20
)

type Config struct {
	URL      string
	Token    string
	CacheTTL time.Duration
}

type Client struct {
	cfg   Config
	http  *http.Client
	store cache.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewClient builds a client; store may be nil to disable caching.
func NewClient(cfg Config, httpClient *http.Client, store cache.Store, log *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, store: store, log: log, now: time.Now}
}

// Fetch returns the normalized history starting at DateFrom(now).
func (c *Client) Fetch(ctx context.Context) (Response, error) {
	dateFrom := DateFrom(c.now())
	key := "historical:" + dateFrom

	if c.store != nil {
		body, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.log.Warn("historical cache read failed", zap.Error(err))
		} else if ok {
			if resp, _, err := Decode(body); err == nil {
				return resp, nil
			}
		}
	}

	body, err := c.get(ctx, dateFrom)
	if err != nil {
		return Response{}, err
	}
	resp, shape, err := Decode(body)
	if err != nil {
		return Response{}, err
	}
	c.log.Debug("historical fetched",
		zap.String("dateFrom", dateFrom),
		zap.Stringer("shape", shape),
		zap.Int("symbols", len(resp.Data)))

	if c.store != nil && c.cfg.CacheTTL > 0 {
		if err := c.store.Set(ctx, key, body, c.cfg.CacheTTL); err != nil {
			c.log.Warn("historical cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, dateFrom string) ([]byte, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("historical url: %w", err)
	}
	q := u.Query()
	q.Set("dateFrom", dateFrom)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

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
		return nil, fmt.Errorf("historical request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("historical http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("historical read: %w", err)
	}
	return body, nil
}
