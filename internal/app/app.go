// Package app assembles the question pipeline from configuration. The API,
// MCP and seed binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/flightqa/flightqa/internal/answer"
	"github.com/flightqa/flightqa/internal/classify"
	"github.com/flightqa/flightqa/internal/config"
	"github.com/flightqa/flightqa/internal/flights"
	"github.com/flightqa/flightqa/internal/llm"
	"github.com/flightqa/flightqa/internal/nl2sql"
	"github.com/flightqa/flightqa/internal/policy"
	"github.com/flightqa/flightqa/internal/prompts"
	"github.com/flightqa/flightqa/internal/storage"
	"github.com/flightqa/flightqa/internal/storage/local"
	s3store "github.com/flightqa/flightqa/internal/storage/s3"
)

type App struct {
	DB          *sqlx.DB
	Flights     *flights.Store
	Catalog     *policy.Catalog
	PolicyStore storage.ObjectStore
	Policies    *policy.Service
	Composer    *answer.Composer
}

// Models lets callers substitute the language models, mainly in tests.
type Models struct {
	SQL      llm.Model
	Luggage  llm.Model
	Embedder llm.Embedder
	Tokens   policy.TokenCounter
}

// Build opens the flight database, seeds it when configured and wires the
// pipeline. Nil fields of models are built from cfg.
func Build(ctx context.Context, cfg config.Config, models Models, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := flights.Open(ctx, flights.DBConfig{
		Driver:          cfg.Flights.Driver,
		DSN:             cfg.Flights.DSN,
		MaxOpenConns:    cfg.Flights.MaxOpenConns,
		MaxIdleConns:    cfg.Flights.MaxIdleConns,
		ConnMaxIdleTime: cfg.Flights.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Flights.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	app, err := build(ctx, cfg, db, models, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg config.Config, db *sqlx.DB, models Models, logger *slog.Logger) (*App, error) {
	store, err := flights.NewStore(db, cfg.Flights.SampleRows)
	if err != nil {
		return nil, err
	}
	if err := seed(ctx, store, cfg.Flights.SeedFile, logger); err != nil {
		return nil, err
	}

	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	policyStore, err := OpenPolicyStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	source, err := policy.NewObjectSource(policyStore)
	if err != nil {
		return nil, err
	}

	if models.SQL == nil {
		if models.SQL, err = llm.New(modelConfig(cfg.SQLModel)); err != nil {
			return nil, fmt.Errorf("sql model: %w", err)
		}
	}
	if models.Luggage == nil {
		if models.Luggage, err = llm.New(modelConfig(cfg.LuggageModel)); err != nil {
			return nil, fmt.Errorf("luggage model: %w", err)
		}
	}

	set := prompts.Default(classify.LuggageVocabulary())
	policies, err := policy.NewService(catalog, source, models.Luggage, set, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Embeddings.Enabled {
		index, err := newIndex(cfg, models, logger)
		if err != nil {
			return nil, err
		}
		policies.WithIndex(index)
	}

	extractor, err := policy.NewExtractor(models.Luggage, set)
	if err != nil {
		return nil, err
	}
	generator, err := nl2sql.NewGenerator(store, models.SQL, set, logger)
	if err != nil {
		return nil, err
	}
	composer, err := answer.NewComposer(answer.Dependencies{
		Generator:     generator,
		Executor:      store,
		Model:         models.SQL,
		Extractor:     extractor,
		Policies:      policies,
		Airlines:      catalog,
		Prompts:       set,
		Logger:        logger,
		SQLChunkDelay: cfg.Stream.SQLChunkDelay,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		DB:          db,
		Flights:     store,
		Catalog:     catalog,
		PolicyStore: policyStore,
		Policies:    policies,
		Composer:    composer,
	}, nil
}

// seed loads the seed file into an empty flights table. A missing file only
// leaves the table empty.
func seed(ctx context.Context, store *flights.Store, path string, logger *slog.Logger) error {
	if path == "" {
		return store.EnsureTable(ctx)
	}
	inserted, err := store.LoadSeed(ctx, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("flight seed file not found", slog.String("file", path))
		return store.EnsureTable(ctx)
	case err != nil:
		return fmt.Errorf("seed flights: %w", err)
	}
	if inserted > 0 {
		logger.Info("flights seeded", slog.Int("rows", inserted), slog.String("file", path))
	}
	return nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Ping reports whether the flight database is reachable.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

// OpenPolicyStore returns the object store holding policy documents.
func OpenPolicyStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.Policy.Source {
	case config.PolicySourceS3:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("open policy object store: %w", err)
		}
		return store.WithPrefix(cfg.Policy.S3Prefix), nil
	case config.PolicySourceLocal:
		return local.New(cfg.Policy.LocalDir)
	default:
		return nil, fmt.Errorf("unknown policy source %q", cfg.Policy.Source)
	}
}

func newIndex(cfg config.Config, models Models, logger *slog.Logger) (*policy.Index, error) {
	embedder := models.Embedder
	if embedder == nil {
		var err error
		embedder, err = llm.NewOpenAIEmbedder(llm.Config{
			BaseURL:    cfg.Embeddings.BaseURL,
			APIKey:     cfg.Embeddings.APIKey,
			Model:      cfg.Embeddings.Model,
			Timeout:    cfg.Embeddings.Timeout,
			MaxRetries: 0,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
	}
	counter := models.Tokens
	if counter == nil {
		var err error
		if counter, err = policy.NewTiktokenCounter(cfg.Embeddings.Model); err != nil {
			return nil, err
		}
	}
	splitter, err := policy.NewSplitter(counter, cfg.Embeddings.ChunkTokens)
	if err != nil {
		return nil, err
	}
	cache, err := local.New(cfg.Embeddings.CacheDir)
	if err != nil {
		return nil, err
	}
	return policy.NewIndex(cache, embedder, splitter, logger)
}

func modelConfig(cfg config.ModelConfig) llm.Config {
	return llm.Config{
		Provider:    cfg.Provider,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
	}
}

// LoadCatalog returns the configured airline catalog, or the built-in one.
func LoadCatalog(cfg config.Config) (*policy.Catalog, error) {
	if cfg.Policy.CatalogFile == "" {
		return policy.DefaultCatalog(), nil
	}
	return policy.LoadCatalog(cfg.Policy.CatalogFile)
}

// ErrEmbeddingsDisabled is returned by WarmEmbeddings when embeddings are
// not enabled.
var ErrEmbeddingsDisabled = errors.New("embeddings are disabled")

// WarmEmbeddings builds the embedding cache of every documented airline
// without starting the rest of the pipeline. Models.SQL is unused and
// Models.Luggage may be nil.
func WarmEmbeddings(ctx context.Context, cfg config.Config, models Models, logger *slog.Logger) error {
	if !cfg.Embeddings.Enabled {
		return ErrEmbeddingsDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}
	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return err
	}
	policyStore, err := OpenPolicyStore(ctx, cfg)
	if err != nil {
		return err
	}
	source, err := policy.NewObjectSource(policyStore)
	if err != nil {
		return err
	}
	index, err := newIndex(cfg, models, logger)
	if err != nil {
		return err
	}
	policies, err := policy.NewService(catalog, source, models.Luggage, prompts.Default(classify.LuggageVocabulary()), logger)
	if err != nil {
		return err
	}
	return policies.WithIndex(index).Warm(ctx)
}
