// Package config loads settings from .env, an optional YAML file and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"quotedesk/internal/calendar"
	"quotedesk/internal/feed"
	"quotedesk/internal/historical"
	"quotedesk/internal/news"
	"quotedesk/internal/quotes"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Quotes     QuotesConfig     `mapstructure:"quotes"`
	Historical HistoricalConfig `mapstructure:"historical"`
	News       NewsConfig       `mapstructure:"news"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type QuotesConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HistoricalConfig struct {
	URL      string        `mapstructure:"url"`
	Token    string        `mapstructure:"token"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NewsConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type CalendarConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// RedisConfig leaves Addr empty to use the in-memory cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

var keys = []string{
	"server.port",
	"logging.level",
	"feed.url", "feed.reconnect_delay",
	"quotes.url", "quotes.timeout",
	"historical.url", "historical.token", "historical.cache_ttl",
	"news.url", "news.token",
	"calendar.base_url",
	"redis.addr", "redis.password", "redis.db",
}

// Load reads .env into the process environment if present, then path (a YAML
// file, optional when it does not exist), then environment variables named
// after the keys with dots replaced by underscores, e.g. HISTORICAL_TOKEN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetDefault("server.port", 8089)
	v.SetDefault("logging.level", "info")
	v.SetDefault("feed.url", feed.DefaultURL)
	v.SetDefault("feed.reconnect_delay", feed.DefaultReconnectDelay)
	v.SetDefault("quotes.url", quotes.DefaultURL)
	v.SetDefault("quotes.timeout", quotes.DefaultTimeout)
	v.SetDefault("historical.url", historical.DefaultURL)
	v.SetDefault("historical.token", "")
	v.SetDefault("historical.cache_ttl", historical.DefaultCacheTTL)
	v.SetDefault("news.url", news.DefaultURL)
	v.SetDefault("news.token", "")
	v.SetDefault("calendar.base_url", calendar.DefaultBaseURL)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be positive")
	}
	return nil
}
