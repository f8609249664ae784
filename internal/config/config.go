// README: Config loader with env defaults for the backend API, socket, Redis, Kafka, and timers.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LocationConfig struct {
	PushInterval   time.Duration
	RequestTimeout time.Duration
}

type ChannelConfig struct {
	URL         string
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

type Config struct {
	HTTP struct {
		Addr string
	}
	API struct {
		BaseURL string
		Timeout time.Duration
	}
	Channel ChannelConfig
	Redis   struct {
		Addr string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Identity struct {
		PartnerID string
		BranchID  string
	}
	Location LocationConfig
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("MILKRUN_HTTP_ADDR", ":8090")
	cfg.API.BaseURL = envOrDefault("MILKRUN_API_URL", "http://localhost:8080/api")
	cfg.API.Timeout = envOrDefaultDuration("MILKRUN_API_TIMEOUT", 15*time.Second)
	cfg.Channel.URL = envOrDefault("MILKRUN_SOCKET_URL", "ws://localhost:8080/socket")
	cfg.Channel.MaxAttempts = envOrDefaultInt("MILKRUN_SOCKET_MAX_ATTEMPTS", 10)
	cfg.Channel.BackoffMin = envOrDefaultDuration("MILKRUN_SOCKET_BACKOFF_MIN", time.Second)
	cfg.Channel.BackoffMax = envOrDefaultDuration("MILKRUN_SOCKET_BACKOFF_MAX", 5*time.Second)
	cfg.Redis.Addr = envOrDefault("MILKRUN_REDIS_ADDR", "localhost:6379")
	cfg.Kafka.Brokers = envOrDefaultList("MILKRUN_KAFKA_BROKERS", nil)
	cfg.Kafka.Topic = envOrDefault("MILKRUN_KAFKA_TOPIC", "partner-order-events")
	cfg.Maps.APIKey = os.Getenv("MILKRUN_MAPS_API_KEY")
	cfg.Identity.PartnerID = os.Getenv("MILKRUN_PARTNER_ID")
	cfg.Identity.BranchID = os.Getenv("MILKRUN_BRANCH_ID")
	cfg.Location.PushInterval = envOrDefaultDuration("MILKRUN_LOCATION_INTERVAL", 2500*time.Millisecond)
	cfg.Location.RequestTimeout = envOrDefaultDuration("MILKRUN_LOCATION_TIMEOUT", 15*time.Second)
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return def
}
