// Package config reads importer settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type LedgerCfg struct {
	Driver    string // none, memory or redis
	RedisAddr string
	Prefix    string
	TTL       time.Duration
	Size      int
}

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	H3Res   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	APIURL    string
	InputPath string
	LogLevel  string
	LogJSON   bool

	Workers                         int
	OnFailure                       string
	RequestTimeout                  time.Duration
	MaxConsecutiveTransportFailures int
	DefaultCollection               string
	FootprintDefaultCRS             bool

	Normalizer string // embedded or postgis
	PostGISDSN string

	JWTSecret string

	Ledger  LedgerCfg
	Events  EventsCfg
	Metrics MetricsCfg

	Addr    string
	MaxBody int64
}

func FromEnv() Config {
	return Config{
		APIURL:    getenv("API_URL", "http://localhost:3000/api"),
		InputPath: getenv("INPUT_PATH", ""),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogJSON:   getbool("LOG_JSON", true),

		Workers:                         getint("WORKERS", 1),
		OnFailure:                       getenv("ON_FAILURE", "continue"),
		RequestTimeout:                  getduration("REQUEST_TIMEOUT", 30*time.Second),
		MaxConsecutiveTransportFailures: getint("MAX_CONSECUTIVE_TRANSPORT_FAILURES", 5),
		DefaultCollection:               getenv("DEFAULT_COLLECTION", ""),
		FootprintDefaultCRS:             getbool("FOOTPRINT_DEFAULT_CRS", false),

		Normalizer: strings.ToLower(getenv("NORMALIZER", "embedded")),
		PostGISDSN: getenv("POSTGIS_DSN", ""),

		JWTSecret: getenv("CATALOG_JWT_SECRET", ""),

		Ledger: LedgerCfg{
			Driver:    strings.ToLower(getenv("LEDGER", "none")),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			Prefix:    getenv("LEDGER_PREFIX", "catalog-importer:"),
			TTL:       getduration("LEDGER_TTL", 0),
			Size:      getint("LEDGER_MEMORY_SIZE", 4096),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getlist("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "spatial-invalidation"),
			H3Res:   getint("H3_RES", 8),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},

		Addr:    getenv("ADDR", ":8090"),
		MaxBody: int64(getint("MAX_BODY_BYTES", 32<<20)),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_URL %q must be an absolute http(s) url", c.APIURL))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers))
	}
	switch strings.ToLower(c.OnFailure) {
	case "continue", "abort":
	default:
		errs = append(errs, fmt.Errorf("ON_FAILURE must be continue or abort, got %q", c.OnFailure))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.MaxConsecutiveTransportFailures < 0 {
		errs = append(errs, errors.New("MAX_CONSECUTIVE_TRANSPORT_FAILURES must be >= 0"))
	}
	switch c.Normalizer {
	case "embedded":
	case "postgis":
		if c.PostGISDSN == "" {
			errs = append(errs, errors.New("POSTGIS_DSN is required when NORMALIZER=postgis"))
		}
	default:
		errs = append(errs, fmt.Errorf("NORMALIZER must be embedded or postgis, got %q", c.Normalizer))
	}
	switch c.Ledger.Driver {
	case "none", "memory":
	case "redis":
		if c.Ledger.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when LEDGER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER must be none, memory or redis, got %q", c.Ledger.Driver))
	}
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required when EVENTS_ENABLED"))
		}
		if c.Events.H3Res < 0 || c.Events.H3Res > 15 {
			errs = append(errs, fmt.Errorf("H3_RES must be 0..15, got %d", c.Events.H3Res))
		}
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a:9092, b:9092" into its non-empty members
func getlist(k, def string) []string {
	var out []string
	for p := range strings.SplitSeq(getenv(k, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
