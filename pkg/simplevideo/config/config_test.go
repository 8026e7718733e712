package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/repo/gormrepo"
	"github.com/tendant/simple-video/pkg/simplevideo/repo/memory"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.DefaultStorageBackend)
	assert.Equal(t, time.Hour, cfg.DownloadTTL)
	assert.Equal(t, simplevideo.DefaultGalleryConcurrency, cfg.GalleryConcurrency)
	assert.Empty(t, cfg.CallbackURL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"postgres without url", []Option{WithDatabase("postgres", "")}},
		{"gorm without url", []Option{WithDatabase("gorm", "")}},
		{"gorm unknown driver", []Option{WithDatabase("gorm", "x"), WithGormDriver("mysql")}},
		{"unknown default backend", []Option{WithDefaultStorage("s3")}},
		{"generation without callback", []Option{WithGeneration("http://gen", "k", "")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			assert.Error(t, err)
		})
	}

	_, err := Load(WithDatabase("mysql", "x"))
	assert.Error(t, err)
	_, err = Load(WithPort(""))
	assert.Error(t, err)
}

func TestCallbackURL(t *testing.T) {
	cfg, err := Load(WithGeneration("http://gen.internal/jobs", "key", "https://api.example.com/"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/webhooks/generation", cfg.CallbackURL())
}

func TestBuildMemory(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	rt, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &memory.Repository{}, rt.Repository)
	assert.Contains(t, rt.Stores, "memory")
	assert.Nil(t, rt.FS())
	assert.Equal(t, "memory", rt.Service.Gateway().Backend())
}

func TestBuildSQLiteAndFilesystem(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(
		WithDatabase("gorm", "file:config_build?mode=memory&cache=shared"),
		WithGormDriver("sqlite"),
		WithFilesystemStorage("fs", dir, "http://localhost:8080", "signing-secret"),
		WithDefaultStorage("fs"),
	)
	require.NoError(t, err)

	rt, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &gormrepo.Repository{}, rt.Repository)
	require.NotNil(t, rt.FS())
	assert.Equal(t, "fs", rt.Service.Gateway().Backend())
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg, err := Load(WithStorageBackend("tape", "tape", nil), WithDefaultStorage("tape"))
	require.NoError(t, err)
	_, err = cfg.Build(context.Background(), nil)
	assert.Error(t, err)
}
