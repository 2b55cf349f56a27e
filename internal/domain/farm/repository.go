package farm

import (
	"context"

	"github.com/google/uuid"
)

// QueryRepository is the read-only data source reports are computed from.
// Lookups of a missing id return a shared.ErrNotFound coded error.
type QueryRepository interface {
	GetOrchard(ctx context.Context, id uuid.UUID) (*Orchard, error)
	GetSeason(ctx context.Context, id uuid.UUID) (*Season, error)
	GetHarvest(ctx context.Context, id uuid.UUID) (*Harvest, error)

	ListSeasonsByOrchard(ctx context.Context, orchardID uuid.UUID) ([]Season, error)
	ListHarvestsBySeason(ctx context.Context, seasonID uuid.UUID) ([]Harvest, error)
	ListInvestmentsByHarvest(ctx context.Context, harvestID uuid.UUID) ([]Investment, error)
	ListSalesByHarvest(ctx context.Context, harvestID uuid.UUID) ([]Sale, error)
}
