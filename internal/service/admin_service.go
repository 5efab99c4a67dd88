package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"oc-search-go/internal/model"
	"oc-search-go/internal/repository"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// Invalidator drops cached schemas after a definition changes.
type Invalidator interface {
	Invalidate()
}

// AdminService manages search application definitions.
type AdminService interface {
	ListSearches(ctx context.Context) ([]model.Search, error)
	ExportDefinition(ctx context.Context, searchID string) (schema.Definition, error)
	ImportDefinition(ctx context.Context, r io.Reader) (schema.Definition, error)
	ImportCKAN(ctx context.Context, r io.Reader, opts schema.CKANOptions) (schema.Definition, error)
	DeleteSearch(ctx context.Context, searchID string) error
	SetDisabled(ctx context.Context, searchID string, disabled bool) error
	MarkImported(ctx context.Context, searchID string) error
}

type adminService struct {
	repo  repository.SchemaRepository
	cache Invalidator
	now   func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(repo repository.SchemaRepository, cache Invalidator) AdminService {
	return &adminService{repo: repo, cache: cache, now: time.Now}
}

func (s *adminService) ListSearches(ctx context.Context) ([]model.Search, error) {
	return s.repo.FindAllSearches(ctx)
}

func (s *adminService) ExportDefinition(ctx context.Context, searchID string) (schema.Definition, error) {
	search, err := s.repo.FindSearch(ctx, searchID)
	if err != nil {
		return schema.Definition{}, err
	}
	fields, err := s.repo.FindFields(ctx, searchID)
	if err != nil {
		return schema.Definition{}, fmt.Errorf("load fields of %s: %w", searchID, err)
	}
	codes, err := s.repo.FindCodes(ctx, searchID)
	if err != nil {
		return schema.Definition{}, fmt.Errorf("load codes of %s: %w", searchID, err)
	}
	return schema.Export(schema.New(*search, fields, codes)), nil
}

func (s *adminService) ImportDefinition(ctx context.Context, r io.Reader) (schema.Definition, error) {
	def, err := schema.ReadDefinition(r)
	if err != nil {
		return def, err
	}
	return def, s.save(ctx, def)
}

func (s *adminService) ImportCKAN(ctx context.Context, r io.Reader, opts schema.CKANOptions) (schema.Definition, error) {
	def, err := schema.ParseCKANYAML(r, opts)
	if err != nil {
		return def, err
	}
	if err := def.Normalize(); err != nil {
		return def, err
	}
	return def, s.save(ctx, def)
}

func (s *adminService) save(ctx context.Context, def schema.Definition) error {
	if err := s.repo.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("save definition %s: %w", def.Search.SearchID, err)
	}
	s.cache.Invalidate()
	log.Infof("[AdminService] definition %s saved, fields: %d, codes: %d", def.Search.SearchID, len(def.Fields), len(def.Codes))
	return nil
}

func (s *adminService) DeleteSearch(ctx context.Context, searchID string) error {
	if err := s.repo.DeleteSearch(ctx, searchID); err != nil {
		return err
	}
	s.cache.Invalidate()
	log.Infof("[AdminService] definition %s deleted", searchID)
	return nil
}

func (s *adminService) SetDisabled(ctx context.Context, searchID string, disabled bool) error {
	if err := s.repo.SetDisabled(ctx, searchID, disabled); err != nil {
		return err
	}
	s.cache.Invalidate()
	log.Infof("[AdminService] search %s disabled: %t", searchID, disabled)
	return nil
}

func (s *adminService) MarkImported(ctx context.Context, searchID string) error {
	if err := s.repo.MarkImported(ctx, searchID, s.now()); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}
