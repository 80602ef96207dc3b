package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scanner
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Data layout
	Data DataConfig

	// External sources
	KRX KRXConfig

	// Daily refresh
	Refresh RefreshConfig

	// API server
	Port string

	// Logging
	LogLevel  string
	LogFormat string
}

// DataConfig holds on-disk data layout
type DataConfig struct {
	Dir          string // base data directory
	SnapshotDir  string // <Dir>/daily/<market>/krx_ohlcv_YYYYMMDD.csv
	PanelDir     string // <Dir>/panel/<market>.csv
	ScanCacheDir string // <Dir>/scan_cache
	LockDir      string // <Dir>/_locks
	HistoryDB    string // <Dir>/scan_history.db
}

// KRXConfig holds market data source configuration
type KRXConfig struct {
	BaseURL      string
	NaverBaseURL string
	Timeout      time.Duration
	RatePerSec   float64 // requests per second against external sources
	MinRows      map[string]int
}

// RefreshConfig holds the once-per-day refresh job configuration
type RefreshConfig struct {
	Enabled  bool
	CronSpec string // e.g. "10 16 * * MON-FRI"
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Data: DataConfig{
			Dir:          dataDir,
			SnapshotDir:  filepath.Join(dataDir, "daily"),
			PanelDir:     filepath.Join(dataDir, "panel"),
			ScanCacheDir: filepath.Join(dataDir, "scan_cache"),
			LockDir:      filepath.Join(dataDir, "_locks"),
			HistoryDB:    filepath.Join(dataDir, "scan_history.db"),
		},

		KRX: KRXConfig{
			BaseURL:      getEnv("KRX_BASE_URL", "http://data.krx.co.kr"),
			NaverBaseURL: getEnv("NAVER_BASE_URL", "https://finance.naver.com"),
			Timeout:      getEnvAsDuration("KRX_TIMEOUT", "30s"),
			RatePerSec:   getEnvAsFloat("KRX_RATE_PER_SEC", 2.0),
			MinRows: map[string]int{
				// 시장별 최소 row 수 (그보다 적으면 불완전 스냅샷으로 판단)
				"KOSPI":  500,
				"KOSDAQ": 1200,
			},
		},

		Refresh: RefreshConfig{
			Enabled:  getEnvAsBool("REFRESH_ENABLED", true),
			CronSpec: getEnv("REFRESH_CRON", "10 16 * * MON-FRI"),
		},

		Port: getEnv("PORT", "8091"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

// loadEnvFile tries to load .env from common locations
func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvAsDuration(key, fallback string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
