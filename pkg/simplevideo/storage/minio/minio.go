package minio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-video/pkg/simplevideo"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint   string // host:port, no scheme
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	Region     string
}

// Backend is a MinIO implementation of the simplevideo.BlobStore interface
type Backend struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New connects to MinIO and creates the bucket when missing
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("bucket created", slog.String("bucket", cfg.BucketName))
	}

	return &Backend{client: client, bucket: cfg.BucketName, logger: logger}, nil
}

// Upload streams an object; a negative size lets minio-go switch to
// multipart uploads
func (b *Backend) Upload(ctx context.Context, params simplevideo.UploadParams) error {
	size := params.Size
	if size < 0 {
		size = -1
	}
	_, err := b.client.PutObject(ctx, b.bucket, params.Key, params.Body, size, minio.PutObjectOptions{
		ContentType:  params.ContentType,
		UserMetadata: params.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// GetObjectMeta stats an object and returns its user metadata with
// lowercased keys
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplevideo.ObjectMeta, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object info: %w", err)
	}

	md := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		md[strings.ToLower(k)] = v
	}
	return &simplevideo.ObjectMeta{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
		ETag:        info.ETag,
		Metadata:    md,
	}, nil
}

// GetDownloadURL presigns a GET
func (b *Backend) GetDownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := make(url.Values)
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttlOrDefault(ttl), params)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return u.String(), nil
}

// GetUploadURL presigns a PUT with the content type and metadata headers
// included in the signature
func (b *Backend) GetUploadURL(ctx context.Context, params simplevideo.UploadURLParams) (*simplevideo.PresignedRequest, error) {
	headers := make(http.Header)
	if params.ContentType != "" {
		headers.Set("Content-Type", params.ContentType)
	}
	for k, v := range params.Metadata {
		headers.Set("X-Amz-Meta-"+k, v)
	}

	u, err := b.client.PresignHeader(ctx, http.MethodPut, b.bucket, params.Key, ttlOrDefault(params.TTL), nil, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return &simplevideo.PresignedRequest{
		URL:     u.String(),
		Method:  http.MethodPut,
		Headers: headerToMap(headers),
	}, nil
}

// Delete deletes an object from storage
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	b.logger.Info("object deleted", slog.String("key", key), slog.String("bucket", b.bucket))
	return nil
}

func headerToMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return simplevideo.DefaultURLTTL
	}
	return ttl
}
