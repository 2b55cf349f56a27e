package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Scope is the entity a report is requested for
type Scope struct {
	Type report.ReportType
	ID   uuid.UUID
}

// AccessGate decides whether a caller may see a report scope. It runs before
// any cache lookup so a rejected request never reads or writes the cache.
type AccessGate struct {
	repo   farm.QueryRepository
	logger *zap.Logger
}

// NewAccessGate creates a new AccessGate
func NewAccessGate(repo farm.QueryRepository, logger *zap.Logger) *AccessGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGate{repo: repo, logger: logger}
}

// Allowed reports whether caller may access data owned by scopeOwnerID.
// Administrators are always allowed.
func Allowed(caller identity.Caller, scopeOwnerID uuid.UUID) bool {
	switch caller.Role {
	case identity.RoleAdministrator:
		return true
	case identity.RoleOwner:
		return caller.UserID != uuid.Nil && caller.UserID == scopeOwnerID
	default:
		return false
	}
}

// Authorize resolves the orchard that owns scope and checks the caller
// against it. Administrators skip the lookup entirely.
func (g *AccessGate) Authorize(ctx context.Context, caller identity.Caller, scope Scope) error {
	if !caller.Role.IsValid() {
		return shared.PermissionDeniedf("role %q may not read reports", caller.Role)
	}
	if caller.IsAdministrator() {
		return nil
	}

	orchard, err := g.owningOrchard(ctx, scope)
	if err != nil {
		return err
	}
	if !Allowed(caller, orchard.OwnerID) {
		g.logger.Info("Report access denied",
			zap.String("user_id", caller.UserID.String()),
			zap.String("scope_type", scope.Type.String()),
			zap.String("scope_id", scope.ID.String()),
		)
		return shared.PermissionDeniedf("%s %s is outside your orchards", scope.Type, scope.ID)
	}
	return nil
}

// owningOrchard walks harvest -> season -> orchard
func (g *AccessGate) owningOrchard(ctx context.Context, scope Scope) (*farm.Orchard, error) {
	orchardID := scope.ID
	switch scope.Type {
	case report.ReportTypeHarvest:
		harvest, err := g.repo.GetHarvest(ctx, scope.ID)
		if err != nil {
			return nil, scopeError(err, "load harvest")
		}
		season, err := g.repo.GetSeason(ctx, harvest.SeasonID)
		if err != nil {
			return nil, scopeError(err, "load season")
		}
		orchardID = season.OrchardID
	case report.ReportTypeSeason:
		season, err := g.repo.GetSeason(ctx, scope.ID)
		if err != nil {
			return nil, scopeError(err, "load season")
		}
		orchardID = season.OrchardID
	case report.ReportTypeOrchard:
	default:
		return nil, shared.InvalidParameterf("unknown report type %q", scope.Type)
	}

	orchard, err := g.repo.GetOrchard(ctx, orchardID)
	if err != nil {
		return nil, scopeError(err, "load orchard")
	}
	return orchard, nil
}
