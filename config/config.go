// Package config loads bscwatch's environment-variable configuration,
// with an optional .env file for local development, using a flat
// getEnv/getEnvAsInt loader pattern.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings resolved once at startup. Threshold
// and rule values live in model.MonitorConfig, loaded separately from the
// KV store — this struct is strictly the "where do I connect and how many
// workers" layer.
type Config struct {
	Env string

	// Upstream chain endpoints
	WSEndpoint  string
	RPCEndpoint string

	// External HTTP collaborators
	StatsAPIBase    string
	LaunchpadAPIBase string
	SpotPriceAPIBase string
	NotifierURL     string

	// Redis (KV store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse (alert sink)
	ClickhouseAddr     string
	ClickhouseUsername string
	ClickhousePassword string
	ClickhouseTimeout  int

	// Kafka (alert mirror)
	KafkaBrokers []string
	KafkaTopic   string

	// Dispatch
	WorkerCount     int
	EventBufferSize int

	// RPCRateLimit caps outbound JSON-RPC calls per second across the
	// service (one limiter in the single shared rpc client), to stay
	// courteous to the upstream node.
	RPCRateLimit int

	// Cache sizing
	ReceiptCacheCap  int
	PairMetaCacheCap int

	// Fourmeme / quote-asset addresses used by the decoder registry and
	// the metadata resolver.
	FourmemeAddresses []string
	QuoteAssets       []string

	// Observability / HTTP
	HTTPPort    string
	MetricsPort string
	LogFormat   string
}

// LoadConfig loads configuration from environment variables, with an
// optional .env file. Missing thresholds fall back to
// model.DefaultMonitorConfig at the KV layer, not here.
func LoadConfig() *Config {
	if err := godotenv.Load(filepath.Join("../..", ".env")); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	return &Config{
		Env: getEnv("ENV", "local"),

		WSEndpoint:  getEnv("BSC_WS_ENDPOINT", "wss://bsc-ws-node.nariox.org:443"),
		RPCEndpoint: getEnv("BSC_RPC_ENDPOINT", "https://bsc-dataseed.binance.org"),

		StatsAPIBase:     getEnv("STATS_API_BASE", "http://localhost:9100"),
		LaunchpadAPIBase: getEnv("LAUNCHPAD_API_BASE", "http://localhost:9101"),
		SpotPriceAPIBase: getEnv("SPOT_PRICE_API_BASE", "http://localhost:9102"),
		NotifierURL:      getEnv("NOTIFIER_URL", "http://localhost:9103/send"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ClickhouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", ""),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseTimeout:  getEnvAsInt("CLICKHOUSE_TIMEOUT", 10),

		KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}, ","),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "bsc-alerts"),

		WorkerCount:     getEnvAsInt("WORKER_COUNT", 20),
		EventBufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 10000),
		RPCRateLimit:    getEnvAsInt("RPC_RATE_LIMIT", 50),

		ReceiptCacheCap:  getEnvAsInt("RECEIPT_CACHE_CAP", 1000),
		PairMetaCacheCap: getEnvAsInt("PAIRMETA_CACHE_CAP", 1000),

		FourmemeAddresses: getEnvAsSlice("FOURMEME_ADDRESSES", []string{
			"0x5c952063c7fc8610FFDB798152D69F0B9550762b",
		}, ","),
		QuoteAssets: getEnvAsSlice("QUOTE_ASSETS", []string{
			"0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
			"0x55d398326f99059fF775485246999027B3197955", // USDT
			"0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", // USDC
		}, ","),

		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "8001"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	return strings.Split(valStr, sep)
}
