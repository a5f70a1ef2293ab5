package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Creecly/cleaninvest/internal/cache"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
)

const (
	companyCachePrefix = "companies:"
	companyListKey     = companyCachePrefix + "all"
)

// companyService serves the fixed company catalog.
type companyService struct {
	db     *gorm.DB
	loader *cache.Loader
	ttl    time.Duration
}

// NewCompanyService creates a new CompanyServicer. The list is cached for ttl.
func NewCompanyService(db *gorm.DB, c cache.Cache, ttl time.Duration) CompanyServicer {
	return &companyService{db: db, loader: cache.NewLoader(c), ttl: ttl}
}

// ListCompanies returns the catalog ordered by name.
func (s *companyService) ListCompanies() ([]models.Company, error) {
	return cache.Remember(context.Background(), s.loader, companyListKey, s.ttl, func() ([]models.Company, error) {
		var companies []models.Company
		if err := s.db.Order("name ASC").Find(&companies).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return companies, nil
	})
}

// GetCompany retrieves one company by ID.
func (s *companyService) GetCompany(id string) (*models.Company, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &company, nil
}

// Seed inserts catalog companies whose symbol is not yet present and returns
// how many were added. Running it again is a no-op.
func (s *companyService) Seed() (int, error) {
	var existing []string
	if err := s.db.Model(&models.Company{}).Pluck("symbol", &existing).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	have := make(map[string]bool, len(existing))
	for _, sym := range existing {
		have[sym] = true
	}

	var missing []models.Company
	for _, e := range defaultCatalog {
		if have[e.Symbol] {
			continue
		}
		missing = append(missing, models.Company{
			Name:        e.Name,
			Symbol:      e.Symbol,
			Category:    e.Category,
			BasePrice:   decimal.RequireFromString(e.BasePrice),
			Description: e.Description,
			Icon:        e.Icon,
		})
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if err := s.db.Create(&missing).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.loader.Cache().InvalidatePrefix(context.Background(), companyCachePrefix); err != nil {
		logger.Get().Warnw("failed to invalidate company cache", "error", err)
	}
	logger.Get().Infow("company catalog seeded", "added", len(missing))
	return len(missing), nil
}
