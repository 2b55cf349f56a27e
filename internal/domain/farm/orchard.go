package farm

import (
	"github.com/google/uuid"
)

// OrchardKind distinguishes owned orchards from rented ones
type OrchardKind string

const (
	OrchardKindOwned  OrchardKind = "owned"
	OrchardKindRented OrchardKind = "rented"
)

// IsValid returns true if the kind is a recognized orchard kind
func (k OrchardKind) IsValid() bool {
	return k == OrchardKindOwned || k == OrchardKindRented
}

// Orchard is a managed production site. Rented orchards are still owned,
// for reporting purposes, by the user who operates them.
type Orchard struct {
	ID       uuid.UUID
	Name     string
	Kind     OrchardKind
	OwnerID  uuid.UUID
	Archived bool
}

// IsOwnedBy returns true if the given user operates this orchard
func (o *Orchard) IsOwnedBy(userID uuid.UUID) bool {
	return o != nil && userID != uuid.Nil && o.OwnerID == userID
}
