package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "concierge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CONCIERGE_PORT")
	setString(&cfg.Server.CORSOrigin, "CONCIERGE_CORS_ORIGIN")
	setString(&cfg.Auth.JWTSecret, "CONCIERGE_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "CONCIERGE_TOKEN_EXPIRY")
	setBool(&cfg.Auth.Enabled, "CONCIERGE_AUTH_ENABLED")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.ChatModel, "CONCIERGE_CHAT_MODEL")
	setString(&cfg.LiteLLM.EmbedModel, "CONCIERGE_EMBED_MODEL")
	setString(&cfg.LiteLLM.TranscribeModel, "CONCIERGE_TRANSCRIBE_MODEL")
	setString(&cfg.LiteLLM.SpeechModel, "CONCIERGE_SPEECH_MODEL")
	setString(&cfg.Qdrant.URL, "QDRANT_URL")
	setString(&cfg.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&cfg.Qdrant.Collection, "CONCIERGE_QDRANT_COLLECTION")
	setInt(&cfg.Qdrant.VectorSize, "CONCIERGE_VECTOR_SIZE")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setDuration(&cfg.Redis.TTL, "CONCIERGE_MEMORY_TTL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONCIERGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONCIERGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONCIERGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONCIERGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CONCIERGE_PG_HEALTH_CHECK")
	setString(&cfg.Ingest.UploadDir, "CONCIERGE_UPLOAD_DIR")
	setInt64(&cfg.Ingest.MaxUploadBytes, "CONCIERGE_MAX_UPLOAD_BYTES")
	setInt(&cfg.Ingest.ChunkSize, "CONCIERGE_CHUNK_SIZE")
	setInt(&cfg.Ingest.ChunkOverlap, "CONCIERGE_CHUNK_OVERLAP")
	setInt(&cfg.Ingest.EmbedWorkers, "CONCIERGE_EMBED_WORKERS")
	setInt(&cfg.Retrieval.TopK, "CONCIERGE_RETRIEVAL_TOP_K")
	setInt(&cfg.Memory.RecentLimit, "CONCIERGE_MEMORY_RECENT_LIMIT")
	setInt(&cfg.Voice.QueueSize, "CONCIERGE_VOICE_QUEUE_SIZE")
	setString(&cfg.Voice.DefaultVoice, "CONCIERGE_VOICE_DEFAULT")
	setInt64(&cfg.TTSCache.MaxBytes, "CONCIERGE_TTS_CACHE_BYTES")
	setDuration(&cfg.TTSCache.TTL, "CONCIERGE_TTS_CACHE_TTL")
	setInt(&cfg.Breaker.MaxFailures, "CONCIERGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONCIERGE_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "CONCIERGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONCIERGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONCIERGE_LOG_ASYNC")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate rejects configurations that would misbehave at runtime.
func validate(cfg *Config) error {
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Memory.RecentLimit <= 0 {
		return fmt.Errorf("memory.recent_limit must be positive, got %d", cfg.Memory.RecentLimit)
	}
	if cfg.Voice.QueueSize <= 0 {
		return fmt.Errorf("voice.queue_size must be positive, got %d", cfg.Voice.QueueSize)
	}
	if cfg.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("qdrant.vector_size must be positive, got %d", cfg.Qdrant.VectorSize)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
