package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/inkfold/prepress/common/models"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Preflight PreflightConfig
	Export    ExportConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds queue transport settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// S3Config holds S3-compatible object storage settings
type S3Config struct {
	Endpoint  string // empty for AWS proper, set for MinIO-style endpoints
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// CDNConfig holds CDN-backed storage settings. Reads go to the edge,
// writes go to the origin storage API.
type CDNConfig struct {
	EdgeURL   string
	OriginURL string
	Token     string
}

// LocalConfig holds local filesystem storage settings
type LocalConfig struct {
	Root string
}

// StorageConfig selects and configures storage backends
type StorageConfig struct {
	DefaultProvider string // "s3", "cdn" or "local"
	S3              S3Config
	CDN             CDNConfig
	Local           LocalConfig
}

// PreflightConfig holds preflight worker pool settings
type PreflightConfig struct {
	Stream            string
	Group             string
	Concurrency       int
	MaxDeliveries     int
	RetryInitial      time.Duration
	VisibilityTimeout time.Duration
	RenderDPI         int
	ThumbnailMaxEdge  int
	ThumbnailQuality  int
	TempDir           string
	GhostscriptBin    string
	MagickBin         string
	Policies          map[models.Plan]models.PlanPolicy
}

// ExportConfig holds export worker pool settings
type ExportConfig struct {
	Stream            string
	Group             string
	Concurrency       int
	MaxDeliveries     int
	RetryInitial      time.Duration
	VisibilityTimeout time.Duration
	ArchivePrefix     string
	URLTTL            time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "prepress"),
			User:        getEnv("POSTGRES_USER", "prepress"),
			Password:    getEnv("POSTGRES_PASSWORD", "prepress"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			DefaultProvider: getEnv("STORAGE_PROVIDER", "s3"),
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				Region:    getEnv("S3_REGION", "us-east-1"),
				Bucket:    getEnv("S3_BUCKET", "prepress-artwork"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				PathStyle: getEnvBool("S3_PATH_STYLE", false),
			},
			CDN: CDNConfig{
				EdgeURL:   getEnv("CDN_EDGE_URL", ""),
				OriginURL: getEnv("CDN_ORIGIN_URL", ""),
				Token:     getEnv("CDN_TOKEN", ""),
			},
			Local: LocalConfig{
				Root: getEnv("LOCAL_STORAGE_ROOT", "/var/lib/prepress/files"),
			},
		},
		Preflight: PreflightConfig{
			Stream:            getEnv("PREFLIGHT_STREAM", "preflight.jobs"),
			Group:             getEnv("PREFLIGHT_GROUP", "preflight_workers"),
			Concurrency:       getEnvInt("PREFLIGHT_CONCURRENCY", 3),
			MaxDeliveries:     getEnvInt("PREFLIGHT_MAX_DELIVERIES", 3),
			RetryInitial:      getEnvDuration("PREFLIGHT_RETRY_INITIAL", 2*time.Second),
			VisibilityTimeout: getEnvDuration("PREFLIGHT_VISIBILITY_TIMEOUT", 5*time.Minute),
			RenderDPI:         getEnvInt("PREFLIGHT_RENDER_DPI", 300),
			ThumbnailMaxEdge:  getEnvInt("THUMBNAIL_MAX_EDGE", 400),
			ThumbnailQuality:  getEnvInt("THUMBNAIL_QUALITY", 85),
			TempDir:           getEnv("PREFLIGHT_TEMP_DIR", os.TempDir()),
			GhostscriptBin:    getEnv("GHOSTSCRIPT_BIN", "gs"),
			MagickBin:         getEnv("MAGICK_BIN", "magick"),
			Policies:          defaultPolicies(),
		},
		Export: ExportConfig{
			Stream:            getEnv("EXPORT_STREAM", "export.jobs"),
			Group:             getEnv("EXPORT_GROUP", "export_workers"),
			Concurrency:       getEnvInt("EXPORT_CONCURRENCY", 2),
			MaxDeliveries:     getEnvInt("EXPORT_MAX_DELIVERIES", 1),
			RetryInitial:      getEnvDuration("EXPORT_RETRY_INITIAL", 2*time.Second),
			VisibilityTimeout: getEnvDuration("EXPORT_VISIBILITY_TIMEOUT", 15*time.Minute),
			ArchivePrefix:     getEnv("EXPORT_ARCHIVE_PREFIX", "exports"),
			URLTTL:            getEnvDuration("EXPORT_URL_TTL", 24*time.Hour),
		},
	}

	return cfg, cfg.Validate()
}

// defaultPolicies returns the reference per-plan thresholds. Every cutoff
// can be overridden per tier through environment variables.
func defaultPolicies() map[models.Plan]models.PlanPolicy {
	base := []string{"raster", "pdf", "svg"}
	full := []string{"raster", "pdf", "svg", "postscript", "tiff", "psd"}

	policies := map[models.Plan]models.PlanPolicy{
		models.PlanFree: {
			MinDPI:         150,
			MaxFileSize:    10 << 20,
			AllowedFormats: base,
		},
		models.PlanStarter: {
			MinDPI:         150,
			MaxFileSize:    25 << 20,
			AllowedFormats: full,
		},
		models.PlanPro: {
			MinDPI:         300,
			MaxFileSize:    100 << 20,
			AllowedFormats: full,
		},
		models.PlanEnterprise: {
			MinDPI:         300,
			MaxFileSize:    500 << 20,
			AllowedFormats: full,
		},
	}

	for plan, p := range policies {
		key := strings.ToUpper(string(plan))
		p.MinDPI = getEnvFloat("PLAN_"+key+"_MIN_DPI", p.MinDPI)
		p.MaxFileSize = int64(getEnvInt("PLAN_"+key+"_MAX_FILE_SIZE", int(p.MaxFileSize)))
		p.HardFloorRatio = getEnvFloat("PLAN_"+key+"_HARD_FLOOR_RATIO", 0.5)
		p.WarnBandRatio = getEnvFloat("PLAN_"+key+"_WARN_BAND_RATIO", 0.8)
		policies[plan] = p
	}
	return policies
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	switch c.Storage.DefaultProvider {
	case "s3", "cdn", "local":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.DefaultProvider)
	}
	if c.Preflight.Concurrency < 1 || c.Export.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be >= 1")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// PolicyFor returns the threshold policy for a plan, falling back to free
func (c *Config) PolicyFor(plan models.Plan) models.PlanPolicy {
	if p, ok := c.Preflight.Policies[plan]; ok {
		return p
	}
	return c.Preflight.Policies[models.PlanFree]
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
