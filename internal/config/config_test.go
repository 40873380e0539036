package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("flightqa-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Flights.Driver != "sqlite" || cfg.Flights.SampleRows != 3 {
		t.Fatalf("Flights = %+v", cfg.Flights)
	}
	if cfg.SQLModel.Model != "deepseek-r1-distill-llama-70b" || cfg.SQLModel.Temperature != 1 {
		t.Fatalf("SQLModel = %+v", cfg.SQLModel)
	}
	if cfg.LuggageModel.Provider != "ollama" || cfg.LuggageModel.Model != "llama3.2:3b" || cfg.LuggageModel.Temperature != 0.2 {
		t.Fatalf("LuggageModel = %+v", cfg.LuggageModel)
	}
	if cfg.Embeddings.Enabled {
		t.Fatal("Embeddings.Enabled should default to false")
	}
	if cfg.Embeddings.ChunkTokens != 500 || cfg.Embeddings.Model != "text-embedding-ada-002" {
		t.Fatalf("Embeddings = %+v", cfg.Embeddings)
	}
	if cfg.Policy.Source != "local" {
		t.Fatalf("Policy.Source = %q", cfg.Policy.Source)
	}
	if cfg.Stream.SQLChunkDelay != 50*time.Millisecond {
		t.Fatalf("Stream.SQLChunkDelay = %s", cfg.Stream.SQLChunkDelay)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("flightqa-api", mapLookup(map[string]string{"FLIGHTQA_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadTestProfileDisablesPacing(t *testing.T) {
	cfg, err := Load("flightqa-api", mapLookup(map[string]string{"FLIGHTQA_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.SQLChunkDelay != 0 {
		t.Fatalf("Stream.SQLChunkDelay = %s, want 0", cfg.Stream.SQLChunkDelay)
	}
	if cfg.Flights.MaxOpenConns != 1 || cfg.Flights.ConnMaxIdleTime != 0 {
		t.Fatalf("in-memory database must keep a single connection: %+v", cfg.Flights)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"FLIGHTQA_PROFILE":                   "test",
		"FLIGHTQA_SERVICE_NAME":              "flightqa-custom",
		"FLIGHTQA_HTTP_ADDR":                 ":9999",
		"FLIGHTQA_HTTP_READ_TIMEOUT":         "2s",
		"FLIGHTQA_LOG_LEVEL":                 "error",
		"FLIGHTQA_AUTH_REQUIRED":             "true",
		"FLIGHTQA_AUTH_STATIC_KEYS":          "k1:web:flight_reader",
		"FLIGHTQA_FLIGHTS_DRIVER":            "pgx",
		"FLIGHTQA_FLIGHTS_DSN":               "postgres://example",
		"FLIGHTQA_FLIGHTS_MAX_OPEN_CONNS":    "42",
		"FLIGHTQA_FLIGHTS_SEED_FILE":         "seed.parquet",
		"FLIGHTQA_SQL_MODEL_BASE_URL":        "https://api.example.com/v1",
		"FLIGHTQA_SQL_MODEL_API_KEY":         "sql-key",
		"FLIGHTQA_SQL_MODEL_NAME":            "gpt-4o",
		"FLIGHTQA_SQL_MODEL_TEMPERATURE":     "0.3",
		"FLIGHTQA_SQL_MODEL_TIMEOUT":         "21s",
		"FLIGHTQA_LUGGAGE_MODEL_PROVIDER":    "openai",
		"FLIGHTQA_LUGGAGE_MODEL_MAX_RETRIES": "5",
		"FLIGHTQA_EMBEDDINGS_ENABLED":        "true",
		"FLIGHTQA_EMBEDDINGS_CACHE_DIR":      "/tmp/emb",
		"FLIGHTQA_POLICY_SOURCE":             "s3",
		"FLIGHTQA_POLICY_S3_PREFIX":          "docs",
		"FLIGHTQA_OBJECTSTORE_BUCKET":        "policies-prod",
		"FLIGHTQA_OBJECTSTORE_USE_SSL":       "true",
		"FLIGHTQA_STREAM_SQL_CHUNK_DELAY":    "10ms",
		"GROQ_API_KEY":                       "ignored",
		"OPENAI_API_KEY":                     "embed-key",
	})
	cfg, err := Load("flightqa-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "flightqa-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:web:flight_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Flights.Driver != "pgx" || cfg.Flights.DSN != "postgres://example" || cfg.Flights.MaxOpenConns != 42 || cfg.Flights.SeedFile != "seed.parquet" {
		t.Fatalf("Flights = %+v", cfg.Flights)
	}
	if cfg.SQLModel.BaseURL != "https://api.example.com/v1" || cfg.SQLModel.APIKey != "sql-key" || cfg.SQLModel.Model != "gpt-4o" {
		t.Fatalf("SQLModel = %+v", cfg.SQLModel)
	}
	if cfg.SQLModel.Temperature != 0.3 || cfg.SQLModel.Timeout != 21*time.Second {
		t.Fatalf("SQLModel = %+v", cfg.SQLModel)
	}
	if cfg.LuggageModel.Provider != "openai" || cfg.LuggageModel.MaxRetries != 5 {
		t.Fatalf("LuggageModel = %+v", cfg.LuggageModel)
	}
	if !cfg.Embeddings.Enabled || cfg.Embeddings.CacheDir != "/tmp/emb" || cfg.Embeddings.APIKey != "embed-key" {
		t.Fatalf("Embeddings = %+v", cfg.Embeddings)
	}
	if cfg.Policy.Source != "s3" || cfg.Policy.S3Prefix != "docs" {
		t.Fatalf("Policy = %+v", cfg.Policy)
	}
	if cfg.ObjectStore.Bucket != "policies-prod" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Stream.SQLChunkDelay != 10*time.Millisecond {
		t.Fatalf("Stream.SQLChunkDelay = %s", cfg.Stream.SQLChunkDelay)
	}
}

func TestLoadFallsBackToProviderKeys(t *testing.T) {
	cfg, err := Load("flightqa-api", mapLookup(map[string]string{"GROQ_API_KEY": "gsk"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SQLModel.APIKey != "gsk" {
		t.Fatalf("SQLModel.APIKey = %q", cfg.SQLModel.APIKey)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"FLIGHTQA_PROFILE": "oops"},
		{"FLIGHTQA_HTTP_READ_TIMEOUT": "NaN"},
		{"FLIGHTQA_FLIGHTS_MAX_OPEN_CONNS": "oops"},
		{"FLIGHTQA_FLIGHTS_DRIVER": "oracle"},
		{"FLIGHTQA_POLICY_SOURCE": "ftp"},
		{"FLIGHTQA_SQL_MODEL_TEMPERATURE": "bad"},
		{"FLIGHTQA_STREAM_SQL_CHUNK_DELAY": "-1s"},
		{"FLIGHTQA_AUTH_REQUIRED": "not-bool"},
		{"FLIGHTQA_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		if _, err := Load("flightqa-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
}

func TestLoadDotEnvPopulatesEnvironment(t *testing.T) {
	const key = "FLIGHTQA_DOTENV_PROBE"
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("%s = %q", key, got)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
