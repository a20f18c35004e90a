// Package config loads liaison settings from an optional YAML file and
// LIAISON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/liaison/internal/fingerprint"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/serp"
)

// EnvPrefix prefixes every environment override. Nested keys use _ in
// place of dots, so search.providers is LIAISON_SEARCH_PROVIDERS.
const EnvPrefix = "LIAISON"

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Search     SearchConfig     `mapstructure:"search"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Generation GenerationConfig `mapstructure:"generation"`
	LinkedIn   LinkedInConfig   `mapstructure:"linkedin"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool `mapstructure:"secure_cookies"`
}

type SearchConfig struct {
	Providers      []string      `mapstructure:"providers"`
	Site           string        `mapstructure:"site"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	DefaultTopic   string        `mapstructure:"default_topic"`
	MaxPosts       int           `mapstructure:"max_posts"`
}

type CacheConfig struct {
	// Backend is json, sqlite, postgres, or none.
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	DSN     string        `mapstructure:"dsn"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ScraperConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	CookieJar    bool          `mapstructure:"cookie_jar"`
	Fingerprint  string        `mapstructure:"fingerprint"`
	RPS          float64       `mapstructure:"rps"`
	Jitter       float64       `mapstructure:"jitter"`
	ProxyFile    string        `mapstructure:"proxy_file"`
	Robots       bool          `mapstructure:"robots"`
	Concurrency  int           `mapstructure:"concurrency"`
}

type GenerationConfig struct {
	// Provider is ollama or openai.
	Provider     string        `mapstructure:"provider"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxPostChars int           `mapstructure:"max_post_chars"`
	Persona      string        `mapstructure:"persona"`
}

type LinkedInConfig struct {
	// Transport is official, voyager, or auto.
	Transport      string        `mapstructure:"transport"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	VoyagerBaseURL string        `mapstructure:"voyager_base_url"`
	LiAt           string        `mapstructure:"li_at"`
	JSessionID     string        `mapstructure:"jsessionid"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SubmitRPS      float64       `mapstructure:"submit_rps"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RedirectURI    string        `mapstructure:"redirect_uri"`
	TokenPath      string        `mapstructure:"token_path"`
}

type MetricsConfig struct {
	// Addr serves /metrics standalone for CLI runs; empty disables it.
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("search.providers", serp.DefaultOrder)
	v.SetDefault("search.site", serp.DefaultSite)
	v.SetDefault("search.rate_limit_delay", serp.DefaultRateLimitDelay)
	v.SetDefault("search.default_topic", "crypto OR cryptocurrency OR stock market")
	v.SetDefault("search.max_posts", 8)

	v.SetDefault("cache.backend", "json")
	v.SetDefault("cache.dir", ".cache/search")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("scraper.timeout", 15*time.Second)
	v.SetDefault("scraper.max_redirects", 10)
	v.SetDefault("scraper.cookie_jar", false)
	v.SetDefault("scraper.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("scraper.rps", 0.0)
	v.SetDefault("scraper.jitter", 0.0)
	v.SetDefault("scraper.proxy_file", "")
	v.SetDefault("scraper.robots", false)
	v.SetDefault("scraper.concurrency", 0)

	v.SetDefault("generation.provider", "ollama")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.timeout", 120*time.Second)
	v.SetDefault("generation.max_post_chars", 500)
	v.SetDefault("generation.persona", "")

	v.SetDefault("linkedin.transport", string(linkedin.TransportAuto))
	v.SetDefault("linkedin.api_base_url", "https://api.linkedin.com")
	v.SetDefault("linkedin.api_version", "202401")
	v.SetDefault("linkedin.voyager_base_url", "https://www.linkedin.com/voyager/api")
	v.SetDefault("linkedin.li_at", "")
	v.SetDefault("linkedin.jsessionid", "")
	v.SetDefault("linkedin.timeout", 30*time.Second)
	v.SetDefault("linkedin.submit_rps", 0.0)
	v.SetDefault("linkedin.client_id", "")
	v.SetDefault("linkedin.client_secret", "")
	v.SetDefault("linkedin.redirect_uri", "http://localhost:8000/auth/callback")
	v.SetDefault("linkedin.token_path", "")

	v.SetDefault("metrics.addr", "")
}

// Load reads configuration. An explicit path must exist; otherwise
// liaison.yaml is looked up in . and $HOME/.liaison and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("liaison")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.liaison")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	switch c.Cache.Backend {
	case "json", "sqlite", "none":
	case "postgres":
		if c.Cache.DSN == "" {
			errs = append(errs, errors.New("cache.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be json, sqlite, postgres or none, got %q", c.Cache.Backend))
	}

	for _, name := range c.Search.Providers {
		if _, ok := serp.Engines[strings.ToLower(name)]; !ok {
			errs = append(errs, fmt.Errorf("search.providers: unknown provider %q", name))
		}
	}

	if _, err := fingerprint.ParseProfile(c.Scraper.Fingerprint); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Generation.Provider) {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("generation.provider must be ollama or openai, got %q", c.Generation.Provider))
	}

	if _, err := linkedin.ParseTransport(c.LinkedIn.Transport); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
