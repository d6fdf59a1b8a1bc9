package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Records   RecordsConfig   `yaml:"records"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
	CORS         CORSConfig      `yaml:"cors"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// CORSConfig lists the browser origins allowed to call the API. "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LLMConfig contains OpenAI-compatible API settings.
type LLMConfig struct {
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseUrl"`
	EmbeddingModel string `yaml:"embeddingModel"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend        string `yaml:"backend"`
	HashDimensions int    `yaml:"hashDimensions"`
	MaxBatchTokens int    `yaml:"maxBatchTokens"`
}

// MatcherConfig tunes ranking.
type MatcherConfig struct {
	TopK               int           `yaml:"topK"`
	GoodMatchThreshold float64       `yaml:"goodMatchThreshold"`
	Timeout            time.Duration `yaml:"timeout"`
}

// RecordsConfig describes where knowledge base records live.
type RecordsConfig struct {
	SeedPath      string              `yaml:"seedPath"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Redis         RedisConfig         `yaml:"redis"`
	ObjectStorage ObjectStorageConfig `yaml:"objectStorage"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// RedisConfig contains connection information for the record snapshot cache.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
	Prefix  string        `yaml:"prefix"`
}

// ObjectStorageConfig points at an S3-compatible endpoint used for s3:// seed paths.
type ObjectStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
}

var embeddingBackends = map[string]bool{"auto": true, "openai": true, "hashing": true}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("HTTP_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("EMBEDDING_BACKEND"); v != "" {
		cfg.Embedding.Backend = v
	}
	if v := os.Getenv("EMBEDDING_HASH_DIMENSIONS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.HashDimensions = parsed
		}
	}
	if v := os.Getenv("MATCHER_TOP_K"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Matcher.TopK = parsed
		}
	}
	if v := os.Getenv("MATCHER_GOOD_MATCH_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.GoodMatchThreshold = parsed
		}
	}
	if v := os.Getenv("MATCHER_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Matcher.Timeout = parsed
		}
	}
	if v := os.Getenv("RECORDS_SEED_PATH"); v != "" {
		cfg.Records.SeedPath = v
	}
	if v := os.Getenv("RECORDS_POSTGRES_DSN"); v != "" {
		cfg.Records.Postgres.DSN = v
	}
	if v := os.Getenv("RECORDS_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Records.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("RECORDS_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Records.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("RECORDS_REDIS_ENABLED"); v != "" {
		cfg.Records.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("RECORDS_REDIS_ADDR"); v != "" {
		cfg.Records.Redis.Addr = v
	}
	if v := os.Getenv("RECORDS_REDIS_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Records.Redis.TTL = parsed
		}
	}
	if v := os.Getenv("OBJECT_STORAGE_ENDPOINT"); v != "" {
		cfg.Records.ObjectStorage.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Records.ObjectStorage.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_SECRET_KEY"); v != "" {
		cfg.Records.ObjectStorage.SecretKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_REGION"); v != "" {
		cfg.Records.ObjectStorage.Region = v
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
			},
		},
		LLM: LLMConfig{
			EmbeddingModel: "text-embedding-3-small",
		},
		Embedding: EmbeddingConfig{
			Backend:        "auto",
			HashDimensions: 256,
			MaxBatchTokens: 200_000,
		},
		Matcher: MatcherConfig{
			TopK:               5,
			GoodMatchThreshold: 0.7,
			Timeout:            20 * time.Second,
		},
		Records: RecordsConfig{
			SeedPath: "",
			Postgres: PostgresConfig{
				DSN:      "",
				MaxConns: 4,
				MinConns: 0,
			},
			Redis: RedisConfig{
				Enabled: false,
				TTL:     time.Minute,
				Prefix:  "support",
			},
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	backend := strings.ToLower(strings.TrimSpace(c.Embedding.Backend))
	if !embeddingBackends[backend] {
		return fmt.Errorf("embedding.backend %q must be one of auto, openai, hashing", c.Embedding.Backend)
	}
	if backend == "openai" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.apiKey is required when embedding.backend is openai")
	}
	if backend != "hashing" && strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModel cannot be empty")
	}
	if c.Embedding.HashDimensions <= 0 {
		return errors.New("embedding.hashDimensions must be positive")
	}
	if c.Embedding.MaxBatchTokens <= 0 {
		return errors.New("embedding.maxBatchTokens must be positive")
	}
	if c.Matcher.TopK <= 0 {
		return errors.New("matcher.topK must be positive")
	}
	if c.Matcher.GoodMatchThreshold < -1 || c.Matcher.GoodMatchThreshold > 1 {
		return errors.New("matcher.goodMatchThreshold must be within [-1, 1]")
	}
	if c.Matcher.Timeout < 0 {
		return errors.New("matcher.timeout cannot be negative")
	}
	if c.Records.Redis.Enabled && strings.TrimSpace(c.Records.Redis.Addr) == "" {
		return errors.New("records.redis.addr cannot be empty when redis cache is enabled")
	}
	if c.Records.Redis.TTL < 0 {
		return errors.New("records.redis.ttl cannot be negative")
	}
	if strings.HasPrefix(strings.TrimSpace(c.Records.SeedPath), "s3://") && strings.TrimSpace(c.Records.ObjectStorage.Endpoint) == "" {
		return errors.New("records.objectStorage.endpoint is required for s3:// seed paths")
	}
	return nil
}
