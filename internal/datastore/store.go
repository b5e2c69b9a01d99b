package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 100

// MaxLimit is the largest page List returns.
const MaxLimit = 1000

// Store is the artifact index.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the sqlite database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}
	return open(path + "?_journal_mode=WAL&_busy_timeout=5000")
}

// OpenInMemory returns a private in-memory store.
func OpenInMemory() (*Store, error) {
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Build()
	}
	if err := db.AutoMigrate(&Artifact{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}
	GetLogger().Debug("artifact index ready")
	return &Store{db: db}, nil
}

// Save inserts a row. A row for the same path is replaced.
func (s *Store) Save(ctx context.Context, a *Artifact) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			UpdateAll: true,
		}).
		Create(a).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_artifact").
			Context("camera", a.Camera).
			Build()
	}
	return nil
}

// List returns the newest artifacts first, optionally filtered by camera.
// limit <= 0 means DefaultLimit.
func (s *Store) List(ctx context.Context, camera string, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if camera != "" {
		q = q.Where("camera = ?", camera)
	}

	var out []Artifact
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_artifacts").
			Build()
	}
	return out, nil
}

// DeleteByPath removes the row for a file that no longer exists.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	if err := s.db.WithContext(ctx).Where("path = ?", path).Delete(&Artifact{}).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_artifact").
			Build()
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		GetLogger().Warn("failed to close database", logger.Error(err))
		return err
	}
	return nil
}
