package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the bot reads from the environment.
type Config struct {
	Service       ServiceConfig
	Audio         AudioConfig
	ASR           ASRConfig
	Reconnect     ReconnectConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the bot instance and its listen ports.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// AudioConfig controls the voice gate.
type AudioConfig struct {
	SampleRateHz    int
	VoiceThreshold  float64
	SilenceHangover int
	FlushInterval   time.Duration
}

// ASRConfig selects and configures the recognition backend.
type ASRConfig struct {
	// Backend is one of socket, controller, google, mock.
	Backend        string
	SocketURL      string
	QueueDepth     int
	LanguageCode   string
	AudioEncoding  string
	InterimResults bool
}

// ReconnectConfig controls the connection supervisor.
type ReconnectConfig struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	HealthInterval time.Duration
}

// RedisConfig controls the transcript store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig controls event publishing.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicUpdates   string
	TopicLifecycle string
	Principal      string
}

// ObservabilityConfig controls logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsPort string
}

// Load reads the configuration from the environment, falling back to
// defaults for anything unset or unparseable.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "call-transcription-bot")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Audio: AudioConfig{
			SampleRateHz:    envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			VoiceThreshold:  envOrDefaultFloat("AUDIO_VOICE_THRESHOLD", 0.015),
			SilenceHangover: envOrDefaultInt("AUDIO_SILENCE_HANGOVER_FRAMES", 25),
			FlushInterval:   envOrDefaultDuration("AUDIO_FLUSH_INTERVAL", 2*time.Second),
		},
		ASR: ASRConfig{
			Backend:        envOrDefault("ASR_BACKEND", "mock"),
			SocketURL:      envOrDefault("ASR_SOCKET_URL", ""),
			QueueDepth:     envOrDefaultInt("ASR_QUEUE_DEPTH", 32),
			LanguageCode:   envOrDefault("ASR_LANGUAGE_CODE", "en-US"),
			AudioEncoding:  envOrDefault("ASR_AUDIO_ENCODING", "LINEAR16"),
			InterimResults: envOrDefaultBool("ASR_INTERIM_RESULTS", true),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:    envOrDefaultInt("RECONNECT_MAX_ATTEMPTS", 5),
			RetryDelay:     envOrDefaultDuration("RECONNECT_RETRY_DELAY", 2*time.Second),
			HealthInterval: envOrDefaultDuration("RECONNECT_HEALTH_INTERVAL", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: envOrDefault("REDIS_PASSWORD", ""),
			DB:       envOrDefaultInt("REDIS_DB", 0),
			TTL:      envOrDefaultDuration("REDIS_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicUpdates:   envOrDefault("KAFKA_TOPIC_UPDATES", "transcripts.updates"),
			TopicLifecycle: envOrDefault("KAFKA_TOPIC_LIFECYCLE", "transcripts.lifecycle"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
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

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
