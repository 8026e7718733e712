package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithDatabase configures the repository. dbType is "memory", "postgres" or "gorm".
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory", "postgres", "gorm":
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'gorm', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithGormDriver selects the gorm dialect
func WithGormDriver(driver string) Option {
	return func(c *ServerConfig) error {
		c.GormDriver = driver
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithStorageBackend adds or replaces a named backend
func WithStorageBackend(name, backendType string, settings map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("storage backend name cannot be empty")
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name:   name,
			Type:   backendType,
			Config: settings,
		})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir, baseURL, secretKey string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		if secretKey == "" {
			return fmt.Errorf("filesystem signing secret cannot be empty")
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir":   baseDir,
				"base_url":   baseURL,
				"secret_key": secretKey,
			},
		})
		return nil
	}
}

// WithGeneration points the service at the generation webhook
func WithGeneration(webhookURL, apiKey, callbackBaseURL string) Option {
	return func(c *ServerConfig) error {
		c.GenerationURL = webhookURL
		c.GenerationAPIKey = apiKey
		c.CallbackBaseURL = callbackBaseURL
		return nil
	}
}

// WithDownloadTTL sets the lifetime of minted download URLs
func WithDownloadTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("download TTL must be positive")
		}
		c.DownloadTTL = ttl
		return nil
	}
}

// WithNATS enables JetStream event publishing
func WithNATS(url, stream, subjectPrefix string) Option {
	return func(c *ServerConfig) error {
		c.NATSURL = url
		if stream != "" {
			c.NATSStream = stream
		}
		if subjectPrefix != "" {
			c.NATSSubjectPrefix = subjectPrefix
		}
		return nil
	}
}
