package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Device   DeviceConfig
	Database DatabaseConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DeviceConfig struct {
	ID string
}

type DatabaseConfig struct {
	Path string
}

type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type SyncConfig struct {
	Interval     time.Duration
	FastInterval time.Duration
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() *Config {
	_ = godotenv.Load()

	remoteTimeout, _ := strconv.Atoi(getEnv("REMOTE_TIMEOUT_SECONDS", "120"))
	syncInterval, _ := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "300"))
	fastInterval, _ := strconv.Atoi(getEnv("SYNC_FAST_INTERVAL_SECONDS", "60"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8081"),
			Env:  getEnv("ENV", "development"),
		},
		Device: DeviceConfig{
			ID: getEnv("DEVICE_ID", "device-local"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "ordersync.db"),
		},
		Remote: RemoteConfig{
			BaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:8080"),
			Token:   getEnv("REMOTE_TOKEN", ""),
			Timeout: time.Duration(remoteTimeout) * time.Second,
		},
		Sync: SyncConfig{
			Interval:     time.Duration(syncInterval) * time.Second,
			FastInterval: time.Duration(fastInterval) * time.Second,
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}

	log.Printf("Config loaded: env=%s, device=%s, remote=%s", cfg.Server.Env, cfg.Device.ID, cfg.Remote.BaseURL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
