package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "FLIGHTQA_"

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Flights       FlightsConfig
	SQLModel      ModelConfig
	LuggageModel  ModelConfig
	Embeddings    EmbeddingsConfig
	Policy        PolicyConfig
	ObjectStore   ObjectStoreConfig
	Stream        StreamConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FlightsConfig selects the flight database. Driver is one of sqlite, pgx
// or duckdb.
type FlightsConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	SeedFile        string
	SampleRows      int
}

type ModelConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

type EmbeddingsConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	CacheDir    string
	ChunkTokens int
}

const (
	PolicySourceLocal = "local"
	PolicySourceS3    = "s3"
)

// PolicyConfig locates the airline catalog and policy documents. Source is
// local or s3.
type PolicyConfig struct {
	CatalogFile string
	Source      string
	LocalDir    string
	S3Prefix    string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type StreamConfig struct {
	SQLChunkDelay time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads an optional dotenv file (FLIGHTQA_ENV_FILE, default
// .env) into the process environment and then loads from it. Variables
// already set take precedence over the file.
func LoadFromEnv(serviceName string) (Config, error) {
	path := ".env"
	if custom, ok := os.LookupEnv(envPrefix + "ENV_FILE"); ok && strings.TrimSpace(custom) != "" {
		path = strings.TrimSpace(custom)
	}
	if err := loadDotEnv(path); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	a := &applier{lookup: lookup}
	a.str("SERVICE_NAME", &cfg.Service.Name)

	a.str("HTTP_ADDR", &cfg.HTTP.Address)
	a.duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	a.duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	a.duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)

	a.str("FLIGHTS_DRIVER", &cfg.Flights.Driver)
	a.str("FLIGHTS_DSN", &cfg.Flights.DSN)
	a.integer("FLIGHTS_MAX_OPEN_CONNS", &cfg.Flights.MaxOpenConns)
	a.integer("FLIGHTS_MAX_IDLE_CONNS", &cfg.Flights.MaxIdleConns)
	a.duration("FLIGHTS_CONN_MAX_IDLE_TIME", &cfg.Flights.ConnMaxIdleTime)
	a.duration("FLIGHTS_CONN_MAX_LIFETIME", &cfg.Flights.ConnMaxLifetime)
	a.str("FLIGHTS_SEED_FILE", &cfg.Flights.SeedFile)
	a.integer("FLIGHTS_SAMPLE_ROWS", &cfg.Flights.SampleRows)

	a.model("SQL_MODEL", &cfg.SQLModel)
	a.model("LUGGAGE_MODEL", &cfg.LuggageModel)

	a.boolean("EMBEDDINGS_ENABLED", &cfg.Embeddings.Enabled)
	a.str("EMBEDDINGS_BASE_URL", &cfg.Embeddings.BaseURL)
	a.str("EMBEDDINGS_API_KEY", &cfg.Embeddings.APIKey)
	a.str("EMBEDDINGS_MODEL", &cfg.Embeddings.Model)
	a.duration("EMBEDDINGS_TIMEOUT", &cfg.Embeddings.Timeout)
	a.str("EMBEDDINGS_CACHE_DIR", &cfg.Embeddings.CacheDir)
	a.integer("EMBEDDINGS_CHUNK_TOKENS", &cfg.Embeddings.ChunkTokens)

	a.str("POLICY_CATALOG_FILE", &cfg.Policy.CatalogFile)
	a.str("POLICY_SOURCE", &cfg.Policy.Source)
	a.str("POLICY_LOCAL_DIR", &cfg.Policy.LocalDir)
	a.str("POLICY_S3_PREFIX", &cfg.Policy.S3Prefix)

	a.str("OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	a.str("OBJECTSTORE_REGION", &cfg.ObjectStore.Region)
	a.str("OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket)
	a.str("OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
	a.str("OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
	a.boolean("OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	a.str("OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix)
	a.boolean("OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)

	a.duration("STREAM_SQL_CHUNK_DELAY", &cfg.Stream.SQLChunkDelay)

	a.boolean("LOG_JSON", &cfg.Observability.LogJSON)
	a.logLevel("LOG_LEVEL", &cfg.Observability.LogLevel)

	a.boolean("AUTH_REQUIRED", &cfg.Auth.Required)
	a.str("AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)
	if a.err != nil {
		return Config{}, a.err
	}

	// Provider-native key variables are honoured when the prefixed ones are unset.
	fallbackString(lookup, "GROQ_API_KEY", &cfg.SQLModel.APIKey)
	fallbackString(lookup, "OPENAI_API_KEY", &cfg.Embeddings.APIKey)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Flights.Driver {
	case "sqlite", "pgx", "duckdb":
	default:
		return Config{}, fmt.Errorf("invalid %sFLIGHTS_DRIVER: %q", envPrefix, cfg.Flights.Driver)
	}
	switch cfg.Policy.Source {
	case PolicySourceLocal, PolicySourceS3:
	default:
		return Config{}, fmt.Errorf("invalid %sPOLICY_SOURCE: %q", envPrefix, cfg.Policy.Source)
	}
	if cfg.Stream.SQLChunkDelay < 0 {
		return Config{}, fmt.Errorf("%sSTREAM_SQL_CHUNK_DELAY must not be negative", envPrefix)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "flightqa-api"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Flights: FlightsConfig{
			Driver:          "sqlite",
			DSN:             "file:flights.db?_pragma=busy_timeout(5000)",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			SeedFile:        "data/flight_data.json",
			SampleRows:      3,
		},
		SQLModel: ModelConfig{
			Provider:    "openai",
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "deepseek-r1-distill-llama-70b",
			Temperature: 1,
			Timeout:     90 * time.Second,
			MaxRetries:  2,
		},
		LuggageModel: ModelConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2:3b",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Embeddings: EmbeddingsConfig{
			Enabled:     false,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "text-embedding-ada-002",
			Timeout:     30 * time.Second,
			CacheDir:    "data/embeddings",
			ChunkTokens: 500,
		},
		Policy: PolicyConfig{
			Source:   PolicySourceLocal,
			LocalDir: "data/policies",
			S3Prefix: "policies",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "flightqa",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Stream: StreamConfig{
			SQLChunkDelay: 50 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required: false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Flights.DSN = "file::memory:?cache=shared"
		cfg.Flights.MaxOpenConns = 1
		cfg.Flights.MaxIdleConns = 1
		cfg.Flights.ConnMaxIdleTime = 0
		cfg.Flights.ConnMaxLifetime = 0
		cfg.Stream.SQLChunkDelay = 0
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// applier applies prefixed environment overrides and keeps the first error.
type applier struct {
	lookup LookupFunc
	err    error
}

func (a *applier) do(fn func() error) {
	if a.err != nil {
		return
	}
	a.err = fn()
}

func (a *applier) str(key string, dst *string) {
	a.do(func() error { return applyString(a.lookup, envPrefix+key, dst) })
}

func (a *applier) duration(key string, dst *time.Duration) {
	a.do(func() error { return applyDuration(a.lookup, envPrefix+key, dst) })
}

func (a *applier) boolean(key string, dst *bool) {
	a.do(func() error { return applyBool(a.lookup, envPrefix+key, dst) })
}

func (a *applier) integer(key string, dst *int) {
	a.do(func() error { return applyInt(a.lookup, envPrefix+key, dst) })
}

func (a *applier) float(key string, dst *float64) {
	a.do(func() error { return applyFloat(a.lookup, envPrefix+key, dst) })
}

func (a *applier) logLevel(key string, dst *slog.Level) {
	a.do(func() error { return applyLogLevel(a.lookup, envPrefix+key, dst) })
}

func (a *applier) model(section string, dst *ModelConfig) {
	a.str(section+"_PROVIDER", &dst.Provider)
	a.str(section+"_BASE_URL", &dst.BaseURL)
	a.str(section+"_API_KEY", &dst.APIKey)
	a.str(section+"_NAME", &dst.Model)
	a.float(section+"_TEMPERATURE", &dst.Temperature)
	a.duration(section+"_TIMEOUT", &dst.Timeout)
	a.integer(section+"_MAX_RETRIES", &dst.MaxRetries)
}

func fallbackString(lookup LookupFunc, key string, dst *string) {
	if *dst != "" {
		return
	}
	_ = applyString(lookup, key, dst)
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
