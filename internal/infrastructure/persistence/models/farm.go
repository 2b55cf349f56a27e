package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/shopspring/decimal"
)

// OrchardModel is the persistence model for an orchard
type OrchardModel struct {
	BaseModel
	Name     string    `gorm:"type:varchar(200);not null"`
	Kind     string    `gorm:"type:varchar(20);not null;default:'owned'"`
	OwnerID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Archived bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (OrchardModel) TableName() string {
	return "orchards"
}

// ToDomain converts the persistence model to a domain Orchard
func (m *OrchardModel) ToDomain() *farm.Orchard {
	return &farm.Orchard{
		ID:       m.ID,
		Name:     m.Name,
		Kind:     farm.OrchardKind(m.Kind),
		OwnerID:  m.OwnerID,
		Archived: m.Archived,
	}
}

// FromDomain populates the model from a domain Orchard
func (m *OrchardModel) FromDomain(o *farm.Orchard) {
	m.ID = o.ID
	m.Name = o.Name
	m.Kind = string(o.Kind)
	m.OwnerID = o.OwnerID
	m.Archived = o.Archived
}

// SeasonModel is the persistence model for a season
type SeasonModel struct {
	BaseModel
	OrchardID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Year      int       `gorm:"not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'open'"`
}

// TableName returns the table name for GORM
func (SeasonModel) TableName() string {
	return "seasons"
}

// ToDomain converts the persistence model to a domain Season
func (m *SeasonModel) ToDomain() *farm.Season {
	return &farm.Season{
		ID:        m.ID,
		OrchardID: m.OrchardID,
		Name:      m.Name,
		Year:      m.Year,
		Status:    farm.SeasonStatus(m.Status),
	}
}

// FromDomain populates the model from a domain Season
func (m *SeasonModel) FromDomain(s *farm.Season) {
	m.ID = s.ID
	m.OrchardID = s.OrchardID
	m.Name = s.Name
	m.Year = s.Year
	m.Status = string(s.Status)
}

// HarvestModel is the persistence model for a harvest
type HarvestModel struct {
	BaseModel
	SeasonID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name      string     `gorm:"type:varchar(200);not null"`
	StartDate time.Time  `gorm:"type:date;not null"`
	EndDate   *time.Time `gorm:"type:date"`
	Status    string     `gorm:"type:varchar(20);not null;default:'planned'"`
}

// TableName returns the table name for GORM
func (HarvestModel) TableName() string {
	return "harvests"
}

// ToDomain converts the persistence model to a domain Harvest
func (m *HarvestModel) ToDomain() *farm.Harvest {
	h := &farm.Harvest{
		ID:        m.ID,
		SeasonID:  m.SeasonID,
		Name:      m.Name,
		StartDate: dateOnly(m.StartDate),
		Status:    farm.HarvestStatus(m.Status),
	}
	if m.EndDate != nil {
		end := dateOnly(*m.EndDate)
		h.EndDate = &end
	}
	return h
}

// FromDomain populates the model from a domain Harvest
func (m *HarvestModel) FromDomain(h *farm.Harvest) {
	m.ID = h.ID
	m.SeasonID = h.SeasonID
	m.Name = h.Name
	m.StartDate = h.StartDate
	m.EndDate = h.EndDate
	m.Status = string(h.Status)
}

// InvestmentModel is the persistence model for money spent on a harvest
type InvestmentModel struct {
	BaseModel
	HarvestID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Category  string          `gorm:"type:varchar(100);not null"`
	Date      time.Time       `gorm:"type:date;not null"`
}

// TableName returns the table name for GORM
func (InvestmentModel) TableName() string {
	return "investments"
}

// ToDomain converts the persistence model to a domain Investment
func (m *InvestmentModel) ToDomain() farm.Investment {
	return farm.Investment{
		ID:        m.ID,
		HarvestID: m.HarvestID,
		Amount:    m.Amount,
		Category:  m.Category,
		Date:      dateOnly(m.Date),
	}
}

// FromDomain populates the model from a domain Investment
func (m *InvestmentModel) FromDomain(inv farm.Investment) {
	m.ID = inv.ID
	m.HarvestID = inv.HarvestID
	m.Amount = inv.Amount
	m.Category = inv.Category
	m.Date = inv.Date
}

// SaleModel is the persistence model for revenue earned from a harvest
type SaleModel struct {
	BaseModel
	HarvestID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Buyer     string          `gorm:"type:varchar(200);not null"`
	Date      time.Time       `gorm:"type:date;not null"`
}

// TableName returns the table name for GORM
func (SaleModel) TableName() string {
	return "sales"
}

// ToDomain converts the persistence model to a domain Sale
func (m *SaleModel) ToDomain() farm.Sale {
	return farm.Sale{
		ID:        m.ID,
		HarvestID: m.HarvestID,
		Amount:    m.Amount,
		Quantity:  m.Quantity,
		Buyer:     m.Buyer,
		Date:      dateOnly(m.Date),
	}
}

// FromDomain populates the model from a domain Sale
func (m *SaleModel) FromDomain(s farm.Sale) {
	m.ID = s.ID
	m.HarvestID = s.HarvestID
	m.Amount = s.Amount
	m.Quantity = s.Quantity
	m.Buyer = s.Buyer
	m.Date = s.Date
}

// FarmModels lists every model the report engine reads, in dependency order
func FarmModels() []any {
	return []any{
		&OrchardModel{},
		&SeasonModel{},
		&HarvestModel{},
		&InvestmentModel{},
		&SaleModel{},
	}
}

// dateOnly drops the time of day a driver may attach to a DATE column.
// The calendar date is read in the zone the driver returned.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
