package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Port                         string
	AllowedOrigin                string
	DatabaseURL                  string
	RedisAddr                    string
	RedisPassword                string
	RedisDB                      int
	AuthSecret                   string
	AccessTokenTTLMinutes        int
	LogLevel                     string
	BusinessTimezone             string
	VoucherConfigCacheTTLSeconds int
	LegacyVoucherFallback        bool
	DSRSeedLockSeconds           int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	cacheTTL, err := strconv.Atoi(getEnv("VOUCHER_CONFIG_CACHE_TTL_SECONDS", "60"))
	if err != nil || cacheTTL < 0 {
		cacheTTL = 60
	}
	lockTTL, err := strconv.Atoi(getEnv("DSR_SEED_LOCK_SECONDS", "15"))
	if err != nil || lockTTL < 1 {
		lockTTL = 15
	}
	legacyFallback, _ := strconv.ParseBool(getEnv("LEGACY_VOUCHER_FALLBACK", "false"))

	cfg := Config{
		Port:                         getEnv("PORT", "8080"),
		AllowedOrigin:                getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:                  os.Getenv("DATABASE_URL"),
		RedisAddr:                    os.Getenv("REDIS_ADDR"),
		RedisPassword:                os.Getenv("REDIS_PASSWORD"),
		RedisDB:                      redisDB,
		AuthSecret:                   strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:        tokenTTL,
		LogLevel:                     getEnv("LOG_LEVEL", "info"),
		BusinessTimezone:             getEnv("BUSINESS_TIMEZONE", "UTC"),
		VoucherConfigCacheTTLSeconds: cacheTTL,
		LegacyVoucherFallback:        legacyFallback,
		DSRSeedLockSeconds:           lockTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves BusinessTimezone. Reset keys and voucher dates are
// computed in this zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.BusinessTimezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
