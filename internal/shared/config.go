package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	StoreDriver string // mysql|mongo|memory
	MySQLDSN    string
	MongoURI    string
	MongoDB     string
	ImageStore  string // db|minio
	MinIO       MinIOConfig

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	JWTSecret string
	JWTTTL    time.Duration

	StripeKey           string
	StripeWebhookSecret string
	StripeBaseURL       string
	Currency            string
	PlatformFeePercent  int
	ClientURL           string

	GeocodeBase      string
	GeocodeRPS       int
	GeocodeUserAgent string
	Workers          int

	MaxUploadBytes int64
}

func Load() Config {
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8000"),
		MetricsAddr: env("METRICS_ADDR", ""),
		StoreDriver: strings.ToLower(env("STORE_DRIVER", "mysql")),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staybook?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		MongoURI:    env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     env("MONGO_DB", "staybook"),
		ImageStore:  strings.ToLower(env("IMAGE_STORE", "db")),
		MinIO: MinIOConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", ""),
			SecretKey: env("MINIO_SECRET_KEY", ""),
			Bucket:    env("MINIO_BUCKET", "hotel-images"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		RedisAddr:           env("REDIS_ADDR", ""),
		RedisPass:           env("REDIS_PASSWORD", ""),
		RedisDB:             atoi("REDIS_DB", 0),
		CacheTTL:            time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		JWTSecret:           env("JWT_SECRET", ""),
		JWTTTL:              time.Duration(atoi("JWT_TTL_HOURS", 24*7)) * time.Hour,
		StripeKey:           env("STRIPE_SECRET", ""),
		StripeWebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:       env("STRIPE_API_BASE", ""),
		Currency:            strings.ToLower(env("CURRENCY", "usd")),
		PlatformFeePercent:  atoi("PLATFORM_FEE_PERCENT", 20),
		ClientURL:           strings.TrimRight(env("CLIENT_URL", "http://localhost:3000"), "/"),
		GeocodeBase:         env("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeRPS:          atoi("GEOCODER_RPS", 1),
		GeocodeUserAgent:    env("GEOCODER_USER_AGENT", "staybook/1.0"),
		Workers:             atoi("WORKERS", 4),
		MaxUploadBytes:      int64(atoi("MAX_UPLOAD_MB", 8)) << 20,
	}
	switch {
	case c.JWTSecret != "":
	case c.IsDev():
		log.Warn().Msg("JWT_SECRET is empty; tokens are signed with a development key")
		c.JWTSecret = "staybook-dev-secret"
	default:
		log.Warn().Str("env", c.AppEnv).Msg("JWT_SECRET is empty; token signing is disabled outside development")
	}
	if c.StripeKey == "" {
		log.Warn().Msg("STRIPE_SECRET is empty")
	}
	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		log.Warn().Int("fee", c.PlatformFeePercent).Msg("PLATFORM_FEE_PERCENT out of range, using 20")
		c.PlatformFeePercent = 20
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development"
}
