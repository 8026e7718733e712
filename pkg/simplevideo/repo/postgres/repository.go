package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-video/pkg/simplevideo"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplevideo.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const assetColumns = `video_id, owner_kind, owner_value, title, storage_key, backend, secret_key,
	status, metadata, created_at, updated_at`

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simplevideo.ErrAssetNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return simplevideo.ErrDuplicateAsset
		case "23514": // check_violation
			return &simplevideo.ValidationError{Field: pgErr.ColumnName, Message: pgErr.Message}
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simplevideo.VideoAsset) error {
	query := `
		INSERT INTO video_assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	metadata := asset.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	_, err := r.db.Exec(ctx, query,
		asset.VideoID, string(asset.Owner.Kind), asset.Owner.Value, asset.Title,
		asset.StorageKey, asset.Backend, asset.SecretKey, string(asset.Status), metadata,
		asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return handlePostgresError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, videoID string, opts ...simplevideo.GetOption) (*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)
	query := `SELECT ` + assetColumns + ` FROM video_assets WHERE video_id = $1`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, videoID), o.IncludeSecret)
	if err != nil {
		return nil, handlePostgresError("get asset", err)
	}
	return asset, nil
}

func (r *Repository) ListAssetsByOwner(ctx context.Context, owner simplevideo.OwnerRef, opts ...simplevideo.GetOption) ([]*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)
	query := `
		SELECT ` + assetColumns + `
		FROM video_assets WHERE owner_kind = $1 AND owner_value = $2
		ORDER BY created_at DESC, video_id DESC`

	rows, err := r.db.Query(ctx, query, string(owner.Kind), owner.Value)
	if err != nil {
		return nil, handlePostgresError("list assets", err)
	}
	defer rows.Close()

	var assets []*simplevideo.VideoAsset
	for rows.Next() {
		asset, err := scanAsset(rows, o.IncludeSecret)
		if err != nil {
			return nil, handlePostgresError("list assets", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list assets", err)
	}
	return assets, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, videoID string, status simplevideo.AssetStatus) (*simplevideo.VideoAsset, error) {
	query := `
		UPDATE video_assets SET status = $2, updated_at = $3
		WHERE video_id = $1
		RETURNING ` + assetColumns

	return r.updateReturning(ctx, "update status", query, videoID, string(status), now())
}

// MergeMetadata relies on jsonb concatenation, which keeps the merge a single
// atomic statement.
func (r *Repository) MergeMetadata(ctx context.Context, videoID string, patch map[string]interface{}) (*simplevideo.VideoAsset, error) {
	if patch == nil {
		patch = map[string]interface{}{}
	}
	query := `
		UPDATE video_assets
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = $3
		WHERE video_id = $1
		RETURNING ` + assetColumns

	return r.updateReturning(ctx, "merge metadata", query, videoID, patch, now())
}

func (r *Repository) UpdateTitle(ctx context.Context, videoID, title string) (*simplevideo.VideoAsset, error) {
	query := `
		UPDATE video_assets SET title = $2, updated_at = $3
		WHERE video_id = $1
		RETURNING ` + assetColumns

	return r.updateReturning(ctx, "update title", query, videoID, title, now())
}

func (r *Repository) DeleteAsset(ctx context.Context, videoID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM video_assets WHERE video_id = $1`, videoID)
	if err != nil {
		return false, handlePostgresError("delete asset", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) updateReturning(ctx context.Context, op, query string, args ...interface{}) (*simplevideo.VideoAsset, error) {
	asset, err := scanAsset(r.db.QueryRow(ctx, query, args...), false)
	if err != nil {
		return nil, handlePostgresError(op, err)
	}
	return asset, nil
}

func scanAsset(row pgx.Row, withSecret bool) (*simplevideo.VideoAsset, error) {
	var (
		asset     simplevideo.VideoAsset
		ownerKind string
		status    string
	)
	err := row.Scan(
		&asset.VideoID, &ownerKind, &asset.Owner.Value, &asset.Title,
		&asset.StorageKey, &asset.Backend, &asset.SecretKey, &status, &asset.Metadata,
		&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}
	asset.Owner.Kind = simplevideo.OwnerKind(ownerKind)
	asset.Status = simplevideo.AssetStatus(status)
	if !withSecret {
		asset.SecretKey = ""
	}
	return &asset, nil
}

func now() time.Time {
	return time.Now().UTC()
}
