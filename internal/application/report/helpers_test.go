package report

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockFarmRepository is a mock implementation of farm.QueryRepository
type MockFarmRepository struct {
	mock.Mock
}

func (m *MockFarmRepository) GetOrchard(ctx context.Context, id uuid.UUID) (*farm.Orchard, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*farm.Orchard), args.Error(1)
}

func (m *MockFarmRepository) GetSeason(ctx context.Context, id uuid.UUID) (*farm.Season, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*farm.Season), args.Error(1)
}

func (m *MockFarmRepository) GetHarvest(ctx context.Context, id uuid.UUID) (*farm.Harvest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*farm.Harvest), args.Error(1)
}

func (m *MockFarmRepository) ListSeasonsByOrchard(ctx context.Context, orchardID uuid.UUID) ([]farm.Season, error) {
	args := m.Called(ctx, orchardID)
	return args.Get(0).([]farm.Season), args.Error(1)
}

func (m *MockFarmRepository) ListHarvestsBySeason(ctx context.Context, seasonID uuid.UUID) ([]farm.Harvest, error) {
	args := m.Called(ctx, seasonID)
	return args.Get(0).([]farm.Harvest), args.Error(1)
}

func (m *MockFarmRepository) ListInvestmentsByHarvest(ctx context.Context, harvestID uuid.UUID) ([]farm.Investment, error) {
	args := m.Called(ctx, harvestID)
	return args.Get(0).([]farm.Investment), args.Error(1)
}

func (m *MockFarmRepository) ListSalesByHarvest(ctx context.Context, harvestID uuid.UUID) ([]farm.Sale, error) {
	args := m.Called(ctx, harvestID)
	return args.Get(0).([]farm.Sale), args.Error(1)
}

// memoryFarm is an in-memory farm.QueryRepository for aggregation tests. It
// counts list calls so tests can tell whether a report was recomputed.
type memoryFarm struct {
	orchards    map[uuid.UUID]farm.Orchard
	seasons     map[uuid.UUID]farm.Season
	harvests    map[uuid.UUID]farm.Harvest
	investments map[uuid.UUID][]farm.Investment
	sales       map[uuid.UUID][]farm.Sale
	failWith    error
	reads       atomic.Int64
}

func newMemoryFarm() *memoryFarm {
	return &memoryFarm{
		orchards:    map[uuid.UUID]farm.Orchard{},
		seasons:     map[uuid.UUID]farm.Season{},
		harvests:    map[uuid.UUID]farm.Harvest{},
		investments: map[uuid.UUID][]farm.Investment{},
		sales:       map[uuid.UUID][]farm.Sale{},
	}
}

func (f *memoryFarm) GetOrchard(_ context.Context, id uuid.UUID) (*farm.Orchard, error) {
	o, ok := f.orchards[id]
	if !ok {
		return nil, shared.NotFoundf("orchard %s not found", id)
	}
	return &o, nil
}

func (f *memoryFarm) GetSeason(_ context.Context, id uuid.UUID) (*farm.Season, error) {
	s, ok := f.seasons[id]
	if !ok {
		return nil, shared.NotFoundf("season %s not found", id)
	}
	return &s, nil
}

func (f *memoryFarm) GetHarvest(_ context.Context, id uuid.UUID) (*farm.Harvest, error) {
	h, ok := f.harvests[id]
	if !ok {
		return nil, shared.NotFoundf("harvest %s not found", id)
	}
	return &h, nil
}

func (f *memoryFarm) ListSeasonsByOrchard(_ context.Context, orchardID uuid.UUID) ([]farm.Season, error) {
	var out []farm.Season
	for _, s := range f.seasons {
		if s.OrchardID == orchardID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *memoryFarm) ListHarvestsBySeason(_ context.Context, seasonID uuid.UUID) ([]farm.Harvest, error) {
	var out []farm.Harvest
	for _, h := range f.harvests {
		if h.SeasonID == seasonID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *memoryFarm) ListInvestmentsByHarvest(_ context.Context, harvestID uuid.UUID) ([]farm.Investment, error) {
	f.reads.Add(1)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]farm.Investment(nil), f.investments[harvestID]...), nil
}

func (f *memoryFarm) ListSalesByHarvest(_ context.Context, harvestID uuid.UUID) ([]farm.Sale, error) {
	f.reads.Add(1)
	return append([]farm.Sale(nil), f.sales[harvestID]...), nil
}

func (f *memoryFarm) addInvestment(harvestID uuid.UUID, amount, category string, date time.Time) {
	f.investments[harvestID] = append(f.investments[harvestID], farm.Investment{
		ID: uuid.New(), HarvestID: harvestID, Amount: dec(amount), Category: category, Date: date,
	})
}

func (f *memoryFarm) addSale(harvestID uuid.UUID, amount, quantity, buyer string, date time.Time) {
	f.sales[harvestID] = append(f.sales[harvestID], farm.Sale{
		ID: uuid.New(), HarvestID: harvestID, Amount: dec(amount), Quantity: dec(quantity), Buyer: buyer, Date: date,
	})
}

// farmFixture is one orchard with a season of two harvests. Harvest one has
// movements in May, June and July 2024; harvest two has none yet.
type farmFixture struct {
	repo      *memoryFarm
	ownerID   uuid.UUID
	orchardID uuid.UUID
	seasonID  uuid.UUID
	harvest1  uuid.UUID
	harvest2  uuid.UUID
}

func newFarmFixture() *farmFixture {
	f := &farmFixture{
		repo:      newMemoryFarm(),
		ownerID:   uuid.New(),
		orchardID: uuid.New(),
		seasonID:  uuid.New(),
		harvest1:  uuid.New(),
		harvest2:  uuid.New(),
	}
	f.repo.orchards[f.orchardID] = farm.Orchard{ID: f.orchardID, Name: "North slope", Kind: farm.OrchardKindOwned, OwnerID: f.ownerID}
	f.repo.seasons[f.seasonID] = farm.Season{ID: f.seasonID, OrchardID: f.orchardID, Name: "2024", Year: 2024, Status: farm.SeasonStatusOpen}

	end := day(2024, 7, 2)
	f.repo.harvests[f.harvest1] = farm.Harvest{ID: f.harvest1, SeasonID: f.seasonID, Name: "Cherries", StartDate: day(2024, 5, 10), EndDate: &end, Status: farm.HarvestStatusCompleted}
	f.repo.harvests[f.harvest2] = farm.Harvest{ID: f.harvest2, SeasonID: f.seasonID, Name: "Apples", StartDate: day(2024, 8, 1), Status: farm.HarvestStatusPlanned}

	f.repo.addInvestment(f.harvest1, "100.10", "fertilizer", day(2024, 5, 12))
	f.repo.addInvestment(f.harvest1, "200.205", "labor", day(2024, 6, 1))
	f.repo.addInvestment(f.harvest1, "50", "", day(2024, 6, 15))
	f.repo.addSale(f.harvest1, "300.50", "10.5", "Acme", day(2024, 6, 20))
	f.repo.addSale(f.harvest1, "150.00", "5", "", day(2024, 7, 1))
	return f
}

// memoryCache is a report.Cache that never expires entries
type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]*report.Payload
	lookups  int
	computes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*report.Payload{}}
}

func (c *memoryCache) GetOrCompute(ctx context.Context, reportType report.ReportType, params report.Params, version string, forceRefresh bool, compute report.ComputeFunc) (*report.Payload, report.ReportKey, error) {
	key, err := report.BuildKey(reportType, params, version)
	if err != nil {
		return nil, report.ReportKey{}, err
	}

	c.mu.Lock()
	c.lookups++
	if p, ok := c.entries[key.String()]; ok && !forceRefresh {
		c.mu.Unlock()
		return p, key, nil
	}
	c.computes++
	c.mu.Unlock()

	p, err := compute(ctx)
	if err != nil {
		return nil, key, err
	}
	c.mu.Lock()
	c.entries[key.String()] = p
	c.mu.Unlock()
	return p, key, nil
}

func (c *memoryCache) stats() (lookups, computes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups, c.computes
}

// counterVersions is a report.VersionSource of the form "1.<bumps>"
type counterVersions struct {
	mu    sync.Mutex
	bumps map[report.ReportType]int
	err   error
}

func (v *counterVersions) Version(_ context.Context, t report.ReportType) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return "", v.err
	}
	return fmt.Sprintf("1.%d", v.bumps[t]), nil
}

func (v *counterVersions) Bump(_ context.Context, t report.ReportType) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return "", v.err
	}
	if v.bumps == nil {
		v.bumps = map[report.ReportType]int{}
	}
	v.bumps[t]++
	return fmt.Sprintf("1.%d", v.bumps[t]), nil
}

// recordingExporter captures the payload it was asked to render
type recordingExporter struct {
	payload *report.Payload
	err     error
}

func (e *recordingExporter) Render(_ context.Context, payload *report.Payload, format report.Format) (*report.Artifact, error) {
	e.payload = payload
	if e.err != nil {
		return nil, e.err
	}
	return &report.Artifact{Format: format, ContentType: "text/plain", Extension: "txt", Data: []byte("rendered")}, nil
}
