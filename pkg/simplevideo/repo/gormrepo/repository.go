// Package gormrepo stores video assets through gorm, on Postgres in
// production and SQLite for local runs and tests.
package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// AssetRecord is the gorm model for the video_assets table.
type AssetRecord struct {
	VideoID    string            `gorm:"column:video_id;primaryKey;size:64"`
	OwnerKind  string            `gorm:"column:owner_kind;size:16;not null;index:idx_video_assets_owner,priority:1"`
	OwnerValue string            `gorm:"column:owner_value;size:320;not null;index:idx_video_assets_owner,priority:2"`
	Title      string            `gorm:"column:title;not null"`
	StorageKey string            `gorm:"column:storage_key;not null;default:''"`
	Backend    string            `gorm:"column:backend;size:64;not null;default:''"`
	SecretKey  string            `gorm:"column:secret_key;size:128;not null"`
	Status     string            `gorm:"column:status;size:16;not null;index:idx_video_assets_status"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;not null"`
}

func (AssetRecord) TableName() string { return "video_assets" }

// Open connects with the named dialect, "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return db, nil
}

// Repository implements simplevideo.Repository on gorm
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open gorm connection
func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the table. Postgres deployments normally
// use the SQL migrations instead.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&AssetRecord{})
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simplevideo.VideoAsset) error {
	rec := toRecord(asset)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return simplevideo.ErrDuplicateAsset
		}
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, videoID string, opts ...simplevideo.GetOption) (*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)
	var rec AssetRecord
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&rec).Error; err != nil {
		return nil, translate("get asset", err)
	}
	return fromRecord(&rec, o.IncludeSecret), nil
}

func (r *Repository) ListAssetsByOwner(ctx context.Context, owner simplevideo.OwnerRef, opts ...simplevideo.GetOption) ([]*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)
	var recs []AssetRecord
	err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_value = ?", string(owner.Kind), owner.Value).
		Order("created_at DESC, video_id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, translate("list assets", err)
	}
	assets := make([]*simplevideo.VideoAsset, 0, len(recs))
	for i := range recs {
		assets = append(assets, fromRecord(&recs[i], o.IncludeSecret))
	}
	return assets, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, videoID string, status simplevideo.AssetStatus) (*simplevideo.VideoAsset, error) {
	return r.mutate(ctx, "update status", videoID, func(rec *AssetRecord) {
		rec.Status = string(status)
	})
}

func (r *Repository) MergeMetadata(ctx context.Context, videoID string, patch map[string]interface{}) (*simplevideo.VideoAsset, error) {
	return r.mutate(ctx, "merge metadata", videoID, func(rec *AssetRecord) {
		rec.Metadata = datatypes.JSONMap(simplevideo.MergeMetadata(rec.Metadata, patch))
	})
}

func (r *Repository) UpdateTitle(ctx context.Context, videoID, title string) (*simplevideo.VideoAsset, error) {
	return r.mutate(ctx, "update title", videoID, func(rec *AssetRecord) {
		rec.Title = title
	})
}

func (r *Repository) DeleteAsset(ctx context.Context, videoID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&AssetRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("delete asset: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// mutate reads, changes and saves a record in one transaction. The row is
// locked for update so concurrent merges serialize on Postgres.
func (r *Repository) mutate(ctx context.Context, op, videoID string, fn func(*AssetRecord)) (*simplevideo.VideoAsset, error) {
	var rec AssetRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("video_id = ?", videoID).
			First(&rec).Error
		if err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = r.now()
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return fromRecord(&rec, false), nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return simplevideo.ErrAssetNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toRecord(a *simplevideo.VideoAsset) *AssetRecord {
	md := datatypes.JSONMap{}
	for k, v := range a.Metadata {
		md[k] = v
	}
	return &AssetRecord{
		VideoID:    a.VideoID,
		OwnerKind:  string(a.Owner.Kind),
		OwnerValue: a.Owner.Value,
		Title:      a.Title,
		StorageKey: a.StorageKey,
		Backend:    a.Backend,
		SecretKey:  a.SecretKey,
		Status:     string(a.Status),
		Metadata:   md,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromRecord(rec *AssetRecord, withSecret bool) *simplevideo.VideoAsset {
	a := &simplevideo.VideoAsset{
		VideoID:    rec.VideoID,
		Owner:      simplevideo.OwnerRef{Kind: simplevideo.OwnerKind(rec.OwnerKind), Value: rec.OwnerValue},
		Title:      rec.Title,
		StorageKey: rec.StorageKey,
		Backend:    rec.Backend,
		Status:     simplevideo.AssetStatus(rec.Status),
		Metadata:   simplevideo.MergeMetadata(nil, rec.Metadata),
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
	if withSecret {
		a.SecretKey = rec.SecretKey
	}
	return a
}
