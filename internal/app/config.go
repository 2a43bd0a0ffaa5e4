package app

import (
	"strings"
	"time"

	"github.com/yungbote/memoir-studio-backend/internal/data/db"
	"github.com/yungbote/memoir-studio-backend/internal/platform/envutil"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string
	Environment string
	Version     string

	DB db.Config

	RedisAddr         string
	EditChannel       string
	StatusChannel     string
	GenerationChannel string

	LeaseTTL            time.Duration
	GenerationTimeout   time.Duration
	ReaperInterval      time.Duration
	ReaperBatch         int
	RateLimit           int
	RateWindow          time.Duration
	CandidatesPerSlot   int
	PopulateConcurrency int

	TemplatesPath string

	// MediaBaseURL serves in-memory assets when no bucket is configured.
	MediaBaseURL  string
	MediaMaxBytes int

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		CORSOrigins: splitList(envutil.String("CORS_ORIGINS", "")),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),

		DB: db.Config{
			Driver:           envutil.String("DB_DRIVER", db.DriverPostgres),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "memoir_studio"),
			SQLitePath:       envutil.String("SQLITE_PATH", ""),
		},

		RedisAddr:         envutil.String("REDIS_ADDR", ""),
		EditChannel:       envutil.String("REDIS_EDIT_CHANNEL", "studio:canvas_edits"),
		StatusChannel:     envutil.String("REDIS_STATUS_CHANNEL", "studio:status"),
		GenerationChannel: envutil.String("REDIS_GENERATION_CHANNEL", "studio:generation"),

		LeaseTTL:            envutil.Seconds("GENERATION_LEASE_SECONDS", 60*time.Second),
		GenerationTimeout:   envutil.Seconds("GENERATION_TIMEOUT_SECONDS", 120*time.Second),
		ReaperInterval:      envutil.Seconds("REAPER_INTERVAL_SECONDS", 15*time.Second),
		ReaperBatch:         envutil.Int("REAPER_BATCH", 100),
		RateLimit:           envutil.Int("GENERATION_RATE_LIMIT", 10),
		RateWindow:          envutil.Seconds("GENERATION_RATE_WINDOW_SECONDS", time.Minute),
		CandidatesPerSlot:   envutil.Int("ILLUSTRATION_CANDIDATES_PER_SLOT", 5),
		PopulateConcurrency: envutil.Int("POPULATE_CONCURRENCY", 4),

		TemplatesPath: envutil.String("STUDIO_TEMPLATES_PATH", ""),

		MediaBaseURL:  envutil.String("MEDIA_MEMORY_BASE_URL", "http://localhost:8080/media"),
		MediaMaxBytes: envutil.Int("MEDIA_MAX_BYTES", 20<<20),

		MetricsAddr: envutil.String("METRICS_ADDR", ""),
	}
	if cfg.LeaseTTL <= 0 {
		log.Warn("GENERATION_LEASE_SECONDS must be positive; using default", "value", cfg.LeaseTTL)
		cfg.LeaseTTL = 60 * time.Second
	}
	log.Info(
		"Config loaded",
		"http_addr", cfg.HTTPAddr,
		"db_driver", cfg.DB.Driver,
		"redis", cfg.RedisAddr != "",
		"lease_ttl", cfg.LeaseTTL,
		"rate_limit", cfg.RateLimit,
		"rate_window", cfg.RateWindow,
	)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
