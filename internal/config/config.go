package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	MigrationsPath          string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	StoreID                 string
	AuthSecret              string
	AccessTokenTTLMinutes   int
	AppEnv                  string
	LogLevel                string
	LogFormat               string
	ProductCacheTTLSeconds  int
	NotifyChannel           string
	ReceivingRequireProduct bool
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory are applied first without overriding variables that
// are already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	cacheTTL, err := strconv.Atoi(getEnv("PRODUCT_CACHE_TTL_SECONDS", "60"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 60
	}
	requireProduct, _ := strconv.ParseBool(getEnv("RECEIVING_REQUIRE_PRODUCT", "false"))

	appEnv := strings.ToLower(getEnv("APP_ENV", "development"))
	logFormat := "console"
	if appEnv == "production" {
		logFormat = "json"
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		MigrationsPath:          getEnv("MIGRATIONS_PATH", "migrations"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		StoreID:                 getEnv("DEFAULT_STORE_ID", "main-store"),
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
		AppEnv:                  appEnv,
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", logFormat),
		ProductCacheTTLSeconds:  cacheTTL,
		NotifyChannel:           getEnv("NOTIFY_CHANNEL", "kulakan:notifications"),
		ReceivingRequireProduct: requireProduct,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
