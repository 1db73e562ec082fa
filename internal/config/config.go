package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// AdEnvironment selects the test or production unit id table.
	AdEnvironment string

	// Redis backs remote config, VIP status and persisted cooldowns.
	RedisEnabled bool
	RedisAddr    string
	UserID       string

	// Analytics
	AnalyticsEnabled bool
	ClickHouseDSN    string

	// Ad server provider. Empty URL runs the manager in mock mode.
	AdServerURL      string
	AdPublisherID    int
	AdAPIKey         string
	AdRequestTimeout time.Duration
	AdDisplayTime    time.Duration
	RewardAmount     int
	RewardType       string

	// Lifecycle policy
	InterstitialCooldown time.Duration
	AppOpenCooldown      time.Duration
	InterstitialRetry    time.Duration
	RewardedRetry        time.Duration
	AppOpenRetry         time.Duration
	RetryMaxAttempts     int
	RetryExponential     bool
	RetryMaxInterval     time.Duration
	MockInterstitial     time.Duration
	MockRewarded         time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8790")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	// rewarded shows block until the ad closes
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 2*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "adshell")
	cfg.AdEnvironment = getenv("AD_ENVIRONMENT", "test")

	cfg.RedisEnabled = envBool("REDIS_ENABLED", false)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.UserID = getenv("AD_USER_ID", "local-user")

	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")

	cfg.AdServerURL = getenv("AD_SERVER_URL", "")
	cfg.AdPublisherID = envInt("AD_PUBLISHER_ID", 1)
	cfg.AdAPIKey = getenv("AD_API_KEY", "")
	cfg.AdRequestTimeout = envDuration("AD_REQUEST_TIMEOUT", 5*time.Second)
	cfg.AdDisplayTime = envDuration("AD_DISPLAY_DURATION", 5*time.Second)
	cfg.RewardAmount = envInt("REWARD_AMOUNT", 50)
	cfg.RewardType = getenv("REWARD_TYPE", "bullets")

	cfg.InterstitialCooldown = envDuration("INTERSTITIAL_COOLDOWN", 60*time.Second)
	cfg.AppOpenCooldown = envDuration("APP_OPEN_COOLDOWN", 30*time.Second)
	cfg.InterstitialRetry = envDuration("INTERSTITIAL_RETRY", 30*time.Second)
	cfg.RewardedRetry = envDuration("REWARDED_RETRY", 30*time.Second)
	// app-open is shown less often, so it retries more slowly
	cfg.AppOpenRetry = envDuration("APP_OPEN_RETRY", 60*time.Second)
	// 0 keeps retrying for the lifetime of the process
	cfg.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", 0)
	cfg.RetryExponential = envBool("RETRY_EXPONENTIAL", false)
	cfg.RetryMaxInterval = envDuration("RETRY_MAX_INTERVAL", 10*time.Minute)
	cfg.MockInterstitial = envDuration("MOCK_INTERSTITIAL", 2*time.Second)
	cfg.MockRewarded = envDuration("MOCK_REWARDED", 3*time.Second)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getenv("TRACING_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
