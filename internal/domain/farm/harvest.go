package farm

import (
	"time"

	"github.com/google/uuid"
)

// HarvestStatus is the lifecycle status of a harvest
type HarvestStatus string

const (
	HarvestStatusPlanned    HarvestStatus = "planned"
	HarvestStatusInProgress HarvestStatus = "in_progress"
	HarvestStatusCompleted  HarvestStatus = "completed"
)

// Harvest is a bounded production cycle within a season
type Harvest struct {
	ID        uuid.UUID
	SeasonID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   *time.Time // nil while the harvest is still running
	Status    HarvestStatus
}

// Span returns the harvest's date span. An open harvest ends at its latest
// recorded movement, which the caller passes as fallback.
func (h *Harvest) Span(fallbackEnd time.Time) (time.Time, time.Time) {
	end := fallbackEnd
	if h.EndDate != nil {
		end = *h.EndDate
	}
	if end.Before(h.StartDate) {
		end = h.StartDate
	}
	return h.StartDate, end
}
