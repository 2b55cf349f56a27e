package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormFarmQueryRepository implements farm.QueryRepository using GORM.
// Every method only reads; listings are ordered so aggregation is stable
// across drivers.
type GormFarmQueryRepository struct {
	db *gorm.DB
}

// NewGormFarmQueryRepository creates a new GormFarmQueryRepository
func NewGormFarmQueryRepository(db *gorm.DB) *GormFarmQueryRepository {
	return &GormFarmQueryRepository{db: db}
}

// GetOrchard finds an orchard by ID
func (r *GormFarmQueryRepository) GetOrchard(ctx context.Context, id uuid.UUID) (*farm.Orchard, error) {
	var model models.OrchardModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "orchard", id)
	}
	return model.ToDomain(), nil
}

// GetSeason finds a season by ID
func (r *GormFarmQueryRepository) GetSeason(ctx context.Context, id uuid.UUID) (*farm.Season, error) {
	var model models.SeasonModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "season", id)
	}
	return model.ToDomain(), nil
}

// GetHarvest finds a harvest by ID
func (r *GormFarmQueryRepository) GetHarvest(ctx context.Context, id uuid.UUID) (*farm.Harvest, error) {
	var model models.HarvestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "harvest", id)
	}
	return model.ToDomain(), nil
}

// ListSeasonsByOrchard returns the seasons of an orchard ordered by year
func (r *GormFarmQueryRepository) ListSeasonsByOrchard(ctx context.Context, orchardID uuid.UUID) ([]farm.Season, error) {
	var rows []models.SeasonModel
	err := r.db.WithContext(ctx).
		Where("orchard_id = ?", orchardID).
		Order("year ASC, name ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	seasons := make([]farm.Season, len(rows))
	for i := range rows {
		seasons[i] = *rows[i].ToDomain()
	}
	return seasons, nil
}

// ListHarvestsBySeason returns the harvests of a season ordered by start date
func (r *GormFarmQueryRepository) ListHarvestsBySeason(ctx context.Context, seasonID uuid.UUID) ([]farm.Harvest, error) {
	var rows []models.HarvestModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("start_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	harvests := make([]farm.Harvest, len(rows))
	for i := range rows {
		harvests[i] = *rows[i].ToDomain()
	}
	return harvests, nil
}

// ListInvestmentsByHarvest returns the investments recorded against a harvest
func (r *GormFarmQueryRepository) ListInvestmentsByHarvest(ctx context.Context, harvestID uuid.UUID) ([]farm.Investment, error) {
	var rows []models.InvestmentModel
	err := r.db.WithContext(ctx).
		Where("harvest_id = ?", harvestID).
		Order("date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	investments := make([]farm.Investment, len(rows))
	for i := range rows {
		investments[i] = rows[i].ToDomain()
	}
	return investments, nil
}

// ListSalesByHarvest returns the sales recorded against a harvest
func (r *GormFarmQueryRepository) ListSalesByHarvest(ctx context.Context, harvestID uuid.UUID) ([]farm.Sale, error) {
	var rows []models.SaleModel
	err := r.db.WithContext(ctx).
		Where("harvest_id = ?", harvestID).
		Order("date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sales := make([]farm.Sale, len(rows))
	for i := range rows {
		sales[i] = rows[i].ToDomain()
	}
	return sales, nil
}

// ListOrchardIDs returns the ids of every active orchard. The cache warmer
// uses it when no explicit orchard list is configured.
func (r *GormFarmQueryRepository) ListOrchardIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.OrchardModel{}).
		Where("archived = ?", false).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NotFoundf("%s %s not found", entity, id)
	}
	return err
}

// Ensure GormFarmQueryRepository implements the interface
var _ farm.QueryRepository = (*GormFarmQueryRepository)(nil)
