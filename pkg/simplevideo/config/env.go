package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the process environment read by WithEnv.
//
// Database:
//
//	DATABASE_URL - "memory" (default), "postgres://...", "postgresql://...",
//	               "sqlite://path" or "gorm+postgres://..."
//
// Storage:
//
//	STORAGE_URL - one of "memory://" (default), "file:///path/to/data",
//	              "s3://bucket", "minio://bucket" or "gcs://bucket";
//	              backend details come from the S3_*, MINIO_*, GCS_* and FS_* variables
type envConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`

	DatabaseURL string `env:"DATABASE_URL"`
	StorageURL  string `env:"STORAGE_URL"`

	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" env-default:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" env-default:"minioadmin"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`

	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	GCSCredentialsJSON string `env:"GCS_CREDENTIALS_JSON"`
	GCSEndpoint        string `env:"GCS_ENDPOINT"`
	GCSAccessID        string `env:"GCS_GOOGLE_ACCESS_ID"`
	GCSPrivateKey      string `env:"GCS_PRIVATE_KEY"`

	FSBaseURL   string `env:"FS_BASE_URL"`
	FSSecretKey string `env:"FS_SECRET_KEY"`

	DownloadTTL        time.Duration `env:"DOWNLOAD_URL_TTL"`
	FetchTimeout       time.Duration `env:"FETCH_TIMEOUT"`
	GalleryConcurrency int           `env:"GALLERY_CONCURRENCY"`

	GenerationURL     string        `env:"GENERATION_WEBHOOK_URL"`
	GenerationAPIKey  string        `env:"GENERATION_API_KEY"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT"`
	CallbackBaseURL   string        `env:"CALLBACK_BASE_URL"`

	JWTSecret            string   `env:"JWT_SECRET"`
	WebhookAPIKeySHA256  string   `env:"WEBHOOK_API_KEY_SHA256"`
	WebhookSigningSecret string   `env:"WEBHOOK_SIGNING_SECRET"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`

	NATSURL           string `env:"NATS_URL"`
	NATSStream        string `env:"NATS_STREAM"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX"`
	NATSConsumer      string `env:"NATS_CONSUMER"`
}

// WithEnv applies environment variable overrides read through cleanenv.
// Unset variables keep the values already on the config.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return env.apply(c)
	}
}

func (e *envConfig) apply(c *ServerConfig) error {
	setString(&c.Port, e.Port)
	setString(&c.Environment, e.Environment)

	if err := applyDatabaseURL(e.DatabaseURL, c); err != nil {
		return err
	}
	if err := e.applyStorageURL(c); err != nil {
		return err
	}

	if e.DownloadTTL > 0 {
		c.DownloadTTL = e.DownloadTTL
	}
	if e.FetchTimeout > 0 {
		c.FetchTimeout = e.FetchTimeout
	}
	if e.GalleryConcurrency > 0 {
		c.GalleryConcurrency = e.GalleryConcurrency
	}

	setString(&c.GenerationURL, e.GenerationURL)
	setString(&c.GenerationAPIKey, e.GenerationAPIKey)
	if e.GenerationTimeout > 0 {
		c.GenerationTimeout = e.GenerationTimeout
	}
	setString(&c.CallbackBaseURL, e.CallbackBaseURL)

	setString(&c.JWTSecret, e.JWTSecret)
	setString(&c.WebhookAPIKeySHA256, e.WebhookAPIKeySHA256)
	setString(&c.WebhookSigningSecret, e.WebhookSigningSecret)
	if len(e.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = e.CORSAllowedOrigins
	}

	setString(&c.NATSURL, e.NATSURL)
	setString(&c.NATSStream, e.NATSStream)
	setString(&c.NATSSubjectPrefix, e.NATSSubjectPrefix)
	setString(&c.NATSConsumer, e.NATSConsumer)
	return nil
}

// applyDatabaseURL detects the repository from the URL scheme
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "gorm+postgres://"):
		c.DatabaseType = "gorm"
		c.GormDriver = "postgres"
		c.DatabaseURL = strings.TrimPrefix(dbURL, "gorm+")
	case strings.HasPrefix(dbURL, "sqlite://"):
		c.DatabaseType = "gorm"
		c.GormDriver = "sqlite"
		c.DatabaseURL = strings.TrimPrefix(dbURL, "sqlite://")
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

func (e *envConfig) applyStorageURL(c *ServerConfig) error {
	raw := e.StorageURL
	if raw == "" {
		return nil
	}
	if raw == "memory" || raw == "memory://" {
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{Name: "memory", Type: "memory"})
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	var backend StorageBackendConfig
	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		backend = StorageBackendConfig{Name: "fs", Type: "fs", Config: map[string]interface{}{
			"base_dir":   path,
			"base_url":   e.FSBaseURL,
			"secret_key": e.FSSecretKey,
		}}
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		backend = StorageBackendConfig{Name: "s3", Type: "s3", Config: map[string]interface{}{
			"bucket":                     u.Host,
			"region":                     firstNonEmpty(u.Query().Get("region"), e.S3Region),
			"endpoint":                   firstNonEmpty(u.Query().Get("endpoint"), e.S3Endpoint),
			"access_key_id":              e.S3AccessKeyID,
			"secret_access_key":          e.S3SecretAccessKey,
			"use_path_style":             e.S3UsePathStyle,
			"create_bucket_if_not_exist": e.S3CreateBucket,
		}}
	case "minio":
		if u.Host == "" {
			return fmt.Errorf("MinIO bucket name cannot be empty in STORAGE_URL")
		}
		backend = StorageBackendConfig{Name: "minio", Type: "minio", Config: map[string]interface{}{
			"bucket":     u.Host,
			"endpoint":   e.MinioEndpoint,
			"access_key": e.MinioAccessKey,
			"secret_key": e.MinioSecretKey,
			"use_ssl":    e.MinioUseSSL,
		}}
	case "gcs", "gs":
		if u.Host == "" {
			return fmt.Errorf("GCS bucket name cannot be empty in STORAGE_URL")
		}
		backend = StorageBackendConfig{Name: "gcs", Type: "gcs", Config: map[string]interface{}{
			"bucket":           u.Host,
			"credentials_file": e.GCSCredentialsFile,
			"credentials_json": e.GCSCredentialsJSON,
			"endpoint":         e.GCSEndpoint,
			"google_access_id": e.GCSAccessID,
			"private_key":      e.GCSPrivateKey,
		}}
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...', 'minio://...' or 'gcs://...')", raw)
	}

	c.DefaultStorageBackend = backend.Name
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
