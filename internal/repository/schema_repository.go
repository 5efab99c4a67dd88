// Package repository holds the gorm access to the configuration store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"oc-search-go/internal/model"
	"oc-search-go/internal/schema"
)

// SchemaRepository reads and writes search application definitions. It
// satisfies schema.Source.
type SchemaRepository interface {
	schema.Source
	FindSearch(ctx context.Context, searchID string) (*model.Search, error)
	SaveDefinition(ctx context.Context, def schema.Definition) error
	DeleteSearch(ctx context.Context, searchID string) error
	SetDisabled(ctx context.Context, searchID string, disabled bool) error
	MarkImported(ctx context.Context, searchID string, at time.Time) error
}

type schemaRepository struct {
	db *gorm.DB
}

// NewSchemaRepository creates a SchemaRepository over db.
func NewSchemaRepository(db *gorm.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

// AutoMigrate creates or updates the configuration store tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Search{}, &model.Field{}, &model.Code{}, &model.ChronologicCode{})
}

func (r *schemaRepository) FindAllSearches(ctx context.Context) ([]model.Search, error) {
	var searches []model.Search
	err := r.db.WithContext(ctx).Order("search_id").Find(&searches).Error
	return searches, err
}

func (r *schemaRepository) FindSearch(ctx context.Context, searchID string) (*model.Search, error) {
	var search model.Search
	err := r.db.WithContext(ctx).Where("search_id = ?", searchID).First(&search).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", schema.ErrNotFound, searchID)
	}
	if err != nil {
		return nil, err
	}
	return &search, nil
}

// FindFields returns the fields of an application in insertion order, which
// is the declared field order.
func (r *schemaRepository) FindFields(ctx context.Context, searchID string) ([]model.Field, error) {
	var fields []model.Field
	err := r.db.WithContext(ctx).Where("search_id = ?", searchID).Order("id").Find(&fields).Error
	return fields, err
}

func (r *schemaRepository) FindCodes(ctx context.Context, searchID string) ([]model.Code, error) {
	var codes []model.Code
	err := r.db.WithContext(ctx).
		Preload("Chronologic", func(db *gorm.DB) *gorm.DB { return db.Order("start_date") }).
		Where("field_fid IN (?)", r.fieldFIDs(r.db.WithContext(ctx), searchID)).
		Order("id").
		Find(&codes).Error
	return codes, err
}

// SaveDefinition replaces the stored definition of def.Search in one
// transaction.
func (r *schemaRepository) SaveDefinition(ctx context.Context, def schema.Definition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.deleteDefinition(tx, def.Search.SearchID); err != nil {
			return err
		}
		search := def.Search
		search.Fields = nil
		if err := tx.Create(&search).Error; err != nil {
			return fmt.Errorf("create search %s: %w", search.SearchID, err)
		}
		if len(def.Fields) > 0 {
			fields := make([]model.Field, len(def.Fields))
			copy(fields, def.Fields)
			for i := range fields {
				fields[i].ID = 0
				fields[i].Codes = nil
			}
			if err := tx.CreateInBatches(&fields, 200).Error; err != nil {
				return fmt.Errorf("create fields: %w", err)
			}
		}
		if len(def.Codes) > 0 {
			codes := make([]model.Code, len(def.Codes))
			copy(codes, def.Codes)
			for i := range codes {
				codes[i].ID = 0
			}
			if err := tx.CreateInBatches(&codes, 200).Error; err != nil {
				return fmt.Errorf("create codes: %w", err)
			}
		}
		return nil
	})
}

func (r *schemaRepository) DeleteSearch(ctx context.Context, searchID string) error {
	if _, err := r.FindSearch(ctx, searchID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.deleteDefinition(tx, searchID)
	})
}

func (r *schemaRepository) SetDisabled(ctx context.Context, searchID string, disabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.Search{}).Where("search_id = ?", searchID).Update("is_disabled", disabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", schema.ErrNotFound, searchID)
	}
	return nil
}

func (r *schemaRepository) MarkImported(ctx context.Context, searchID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Search{}).Where("search_id = ?", searchID).Update("imported_on", at).Error
}

func (r *schemaRepository) fieldFIDs(db *gorm.DB, searchID string) *gorm.DB {
	return db.Model(&model.Field{}).Select("fid").Where("search_id = ?", searchID)
}

// deleteDefinition removes an application bottom-up: chronologic codes,
// codes, fields, then the application row.
func (r *schemaRepository) deleteDefinition(tx *gorm.DB, searchID string) error {
	codeCIDs := tx.Model(&model.Code{}).Select("cid").Where("field_fid IN (?)", r.fieldFIDs(tx, searchID))
	if err := tx.Where("code_cid IN (?)", codeCIDs).Delete(&model.ChronologicCode{}).Error; err != nil {
		return fmt.Errorf("delete chronologic codes: %w", err)
	}
	if err := tx.Where("field_fid IN (?)", r.fieldFIDs(tx, searchID)).Delete(&model.Code{}).Error; err != nil {
		return fmt.Errorf("delete codes: %w", err)
	}
	if err := tx.Where("search_id = ?", searchID).Delete(&model.Field{}).Error; err != nil {
		return fmt.Errorf("delete fields: %w", err)
	}
	if err := tx.Where("search_id = ?", searchID).Delete(&model.Search{}).Error; err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	return nil
}
