package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AdminCfg struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	InstanceID     string
	DBDriver       string
	DatabaseURL    string
	QueryTimeout   time.Duration
	RadiusDefault  int
	RadiusMin      int
	RadiusMax      int
	RedisAddr      string
	CacheEnabled   bool
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
	EventsEnabled  bool
	Admin          AdminCfg
	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string
}

func FromEnv() Config {
	rmin := getint("RADIUS_MIN", 100)
	rmax := getint("RADIUS_MAX", 50000)
	if rmin < 1 {
		rmin = 1
	}
	if rmax < rmin {
		rmin, rmax = 100, 50000
	}
	rdef := getint("RADIUS_DEFAULT", 5000)
	if rdef < rmin || rdef > rmax {
		rdef = min(max(5000, rmin), rmax)
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		InstanceID:     getenv("INSTANCE_ID", hostname()),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DatabaseURL:    getenv("DATABASE_URL", "placefinder.db"),
		QueryTimeout:   getduration("QUERY_TIMEOUT", 2*time.Second),
		RadiusDefault:  rdef,
		RadiusMin:      rmin,
		RadiusMax:      rmax,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:   getbool("CACHE_ENABLED", false),
		CacheTTL:       getduration("CACHE_TTL", 60*time.Second),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		EventsEnabled:  getbool("EVENTS_ENABLED", false),
		Admin: AdminCfg{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getduration("JWT_TTL", 12*time.Hour),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
	}
}

// AdminEnabled reports whether the admin routes can be mounted.
func (c Config) AdminEnabled() bool { return c.Admin.JWTSecret != "" }

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "placefinder"
	}
	return h
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
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
