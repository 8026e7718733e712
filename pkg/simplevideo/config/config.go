package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/generation"
	"github.com/tendant/simple-video/pkg/simplevideo/repo/gormrepo"
	"github.com/tendant/simple-video/pkg/simplevideo/repo/memory"
	repopg "github.com/tendant/simple-video/pkg/simplevideo/repo/postgres"
	fsstorage "github.com/tendant/simple-video/pkg/simplevideo/storage/fs"
	gcsstorage "github.com/tendant/simple-video/pkg/simplevideo/storage/gcs"
	memorystorage "github.com/tendant/simple-video/pkg/simplevideo/storage/memory"
	miniostorage "github.com/tendant/simple-video/pkg/simplevideo/storage/minio"
	s3storage "github.com/tendant/simple-video/pkg/simplevideo/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		GormDriver:            "sqlite",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
		DownloadTTL:        simplevideo.DefaultURLTTL,
		GalleryConcurrency: simplevideo.DefaultGalleryConcurrency,
		GenerationTimeout:  30 * time.Second,
		NATSStream:         "VIDEO_EVENTS",
		NATSSubjectPrefix:  "videos",
		NATSConsumer:       "video-status-callbacks",
	}
}

// ServerConfig represents server configuration for the simple-video service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "gorm"
	GormDriver   string // "sqlite" or "postgres" when DatabaseType is "gorm"

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Asset lifecycle
	DownloadTTL        time.Duration
	FetchTimeout       time.Duration
	GalleryConcurrency int

	// Generation webhook
	GenerationURL     string
	GenerationAPIKey  string
	GenerationTimeout time.Duration
	CallbackBaseURL   string

	// HTTP surface
	JWTSecret            string
	WebhookAPIKeySHA256  string
	WebhookSigningSecret string
	CORSAllowedOrigins   []string

	// NATS JetStream; events are published only when NATSURL is set
	NATSURL           string
	NATSStream        string
	NATSSubjectPrefix string
	NATSConsumer      string
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3", "minio", "gcs"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "gorm":
		if c.GormDriver != "sqlite" && c.GormDriver != "postgres" {
			return fmt.Errorf("gorm driver must be 'sqlite' or 'postgres', got: %s", c.GormDriver)
		}
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using gorm")
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'gorm'")
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	if c.GalleryConcurrency < 1 {
		return errors.New("gallery concurrency must be at least 1")
	}
	if c.DownloadTTL <= 0 {
		return errors.New("download TTL must be positive")
	}
	if c.GenerationURL != "" && c.CallbackBaseURL == "" {
		return errors.New("callback base URL is required when a generation URL is set")
	}
	return nil
}

// CallbackURL is where the generator posts status updates.
func (c *ServerConfig) CallbackURL() string {
	if c.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.CallbackBaseURL, "/") + "/webhooks/generation"
}

// Runtime is a built service together with the parts the HTTP layer and
// commands need direct access to.
type Runtime struct {
	Service    simplevideo.Service
	Repository simplevideo.Repository
	Stores     map[string]simplevideo.BlobStore
	closers    []func()
}

// FS returns the first configured filesystem backend, if any.
func (r *Runtime) FS() *fsstorage.Backend {
	for _, store := range r.Stores {
		if fsb, ok := store.(*fsstorage.Backend); ok {
			return fsb
		}
	}
	return nil
}

// Close releases pools and clients opened by Build.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, extra ...simplevideo.Option) (simplevideo.Service, error) {
	rt, err := c.Build(ctx, slog.Default(), extra...)
	if err != nil {
		return nil, err
	}
	return rt.Service, nil
}

// Build wires repository, blob stores and collaborators into a Service.
// extra options are applied last so callers can add an event sink.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger, extra ...simplevideo.Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Stores: map[string]simplevideo.BlobStore{}}

	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo
	if closeRepo != nil {
		rt.closers = append(rt.closers, closeRepo)
	}

	options := []simplevideo.Option{
		simplevideo.WithRepository(repo),
		simplevideo.WithLogger(logger),
		simplevideo.WithDefaultBackend(c.DefaultStorageBackend),
		simplevideo.WithDownloadTTL(c.DownloadTTL),
		simplevideo.WithGalleryConcurrency(c.GalleryConcurrency),
	}

	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(ctx, backendConfig, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		rt.Stores[backendConfig.Name] = store
		if gcs, ok := store.(*gcsstorage.Backend); ok {
			rt.closers = append(rt.closers, func() { _ = gcs.Close() })
		}
		options = append(options, simplevideo.WithBlobStore(backendConfig.Name, store))
	}

	if c.FetchTimeout > 0 {
		options = append(options, simplevideo.WithFetcher(simplevideo.NewHTTPFetcher(simplevideo.WithFetchTimeout(c.FetchTimeout))))
	}

	if c.GenerationURL != "" {
		client := generation.New(c.GenerationURL,
			generation.WithAPIKey(c.GenerationAPIKey),
			generation.WithTimeout(c.GenerationTimeout),
			generation.WithUnauthorizedHandler(func(req *http.Request) {
				logger.Error("generation webhook rejected credentials", "url", req.URL.String())
			}),
		)
		options = append(options,
			simplevideo.WithGenerationSubmitter(client),
			simplevideo.WithCallbackURL(c.CallbackURL()),
		)
	}

	options = append(options, extra...)
	svc, err := simplevideo.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplevideo.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	case "gorm":
		db, err := gormrepo.Open(c.GormDriver, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo := gormrepo.New(db)
		if c.GormDriver == "sqlite" {
			if err := repo.AutoMigrate(); err != nil {
				return nil, nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
			}
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repo, closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig, logger *slog.Logger) (simplevideo.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:     getString(config.Config, "base_dir", "./data/storage"),
			BaseURL:     getString(config.Config, "base_url", "http://localhost:"+c.Port),
			RoutePrefix: getString(config.Config, "route_prefix", "/files"),
			SecretKey:   getString(config.Config, "secret_key", ""),
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:   getString(config.Config, "endpoint", "localhost:9000"),
			AccessKey:  getString(config.Config, "access_key", ""),
			SecretKey:  getString(config.Config, "secret_key", ""),
			BucketName: getString(config.Config, "bucket", ""),
			UseSSL:     getBool(config.Config, "use_ssl", false),
			Region:     getString(config.Config, "region", ""),
		}, logger)

	case "gcs":
		return gcsstorage.New(ctx, gcsstorage.Config{
			Bucket:          getString(config.Config, "bucket", ""),
			CredentialsJSON: getString(config.Config, "credentials_json", ""),
			CredentialsFile: getString(config.Config, "credentials_file", ""),
			Endpoint:        getString(config.Config, "endpoint", ""),
			GoogleAccessID:  getString(config.Config, "google_access_id", ""),
			PrivateKey:      []byte(getString(config.Config, "private_key", "")),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok && str != "" {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
