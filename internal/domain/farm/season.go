package farm

import (
	"github.com/google/uuid"
)

// SeasonStatus is the lifecycle flag of a season
type SeasonStatus string

const (
	SeasonStatusOpen   SeasonStatus = "open"
	SeasonStatusClosed SeasonStatus = "closed"
)

// Season is a yearly cycle grouping harvests of one orchard
type Season struct {
	ID        uuid.UUID
	OrchardID uuid.UUID
	Name      string
	Year      int
	Status    SeasonStatus
}

// IsClosed returns true if the season no longer accepts harvests
func (s *Season) IsClosed() bool {
	return s.Status == SeasonStatusClosed
}
