package report

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(s report.Series) [][2]string {
	out := make([][2]string, len(s.Data))
	for i, p := range s.Data {
		out[i] = [2]string{p.X, p.Y}
	}
	return out
}

func TestComputeHarvestReport(t *testing.T) {
	f := newFarmFixture()
	agg := NewAggregator(f.repo, WithCurrency("EUR"))

	p, err := agg.ComputeHarvestReport(context.Background(), f.harvest1)
	require.NoError(t, err)

	assert.Equal(t, []report.KPI{
		{Label: KPITotalInvested, Value: "350.31", Unit: "EUR"},
		{Label: KPITotalSold, Value: "450.50", Unit: "EUR"},
		{Label: KPINetMargin, Value: "100.20", Unit: "EUR"},
		{Label: KPIMarginPercent, Value: "22.24", Unit: "%"},
	}, p.KPIs)

	inv := p.Tables[TableInvestments]
	assert.Equal(t, []string{"Category", "Entries", "Amount"}, inv.Headers)
	assert.Equal(t, [][]string{
		{"Uncategorized", "1", "50.00"},
		{"fertilizer", "1", "100.10"},
		{"labor", "1", "200.21"},
	}, inv.Rows)
	assert.Equal(t, []string{"Grand total", "3", "350.31"}, inv.Totals)

	sales := p.Tables[TableSales]
	assert.Equal(t, [][]string{
		{"Acme", "1", "10.50", "300.50"},
		{"Unspecified", "1", "5.00", "150.00"},
	}, sales.Rows)
	assert.Equal(t, []string{"Grand total", "2", "15.50", "450.50"}, sales.Totals)

	require.Len(t, p.Series, 2)
	assert.Equal(t, SeriesInvested, p.Series[0].ID)
	assert.Equal(t, [][2]string{
		{"2024-05-01", "100.10"},
		{"2024-06-01", "250.21"},
		{"2024-07-01", "0.00"},
	}, points(p.Series[0]))
	assert.Equal(t, [][2]string{
		{"2024-05-01", "0.00"},
		{"2024-06-01", "300.50"},
		{"2024-07-01", "150.00"},
	}, points(p.Series[1]))
}

func TestComputeHarvestReport_Empty(t *testing.T) {
	f := newFarmFixture()
	agg := NewAggregator(f.repo)

	p, err := agg.ComputeHarvestReport(context.Background(), f.harvest2)
	require.NoError(t, err)

	for _, k := range p.KPIs {
		assert.Equal(t, "0.00", k.Value, k.Label)
	}
	assert.Empty(t, p.Tables[TableInvestments].Rows)
	assert.NotNil(t, p.Tables[TableInvestments].Rows)
	assert.Equal(t, [][2]string{{"2024-08-01", "0.00"}}, points(p.Series[0]))
}

func TestComputeHarvestReport_ExactDecimals(t *testing.T) {
	repo := newMemoryFarm()
	h := uuid.New()
	repo.harvests[h] = farm.Harvest{ID: h, StartDate: day(2024, 1, 1)}
	for i := 0; i < 10; i++ {
		repo.addInvestment(h, "0.1", "seed", day(2024, 1, 2))
	}
	repo.addSale(h, "0.005", "1", "Market", day(2024, 1, 3))

	p, err := NewAggregator(repo).ComputeHarvestReport(context.Background(), h)
	require.NoError(t, err)

	invested, _ := p.KPI(KPITotalInvested)
	sold, _ := p.KPI(KPITotalSold)
	assert.Equal(t, "1.00", invested.Value)
	assert.Equal(t, "0.01", sold.Value, "half rounds away from zero")
}

func TestComputeSeasonReport(t *testing.T) {
	f := newFarmFixture()
	agg := NewAggregator(f.repo)

	p, err := agg.ComputeSeasonReport(context.Background(), f.seasonID)
	require.NoError(t, err)

	tbl := p.Tables[TableHarvests]
	assert.Equal(t, [][]string{
		{"Cherries", "2024-05-10", "2024-07-02", "completed", "350.31", "450.50", "100.20"},
		{"Apples", "2024-08-01", "", "planned", "0.00", "0.00", "0.00"},
	}, tbl.Rows)
	assert.Equal(t, []string{"Grand total", "", "", "", "350.31", "450.50", "100.20"}, tbl.Totals)

	assert.Equal(t, [][2]string{
		{"2024-05-01", "100.10"},
		{"2024-06-01", "250.21"},
		{"2024-07-01", "0.00"},
		{"2024-08-01", "0.00"},
	}, points(p.Series[0]))
}

func TestComputeOrchardReport(t *testing.T) {
	f := newFarmFixture()
	agg := NewAggregator(f.repo)

	t.Run("all time", func(t *testing.T) {
		p, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{})
		require.NoError(t, err)

		assert.Equal(t, [][]string{
			{"2024", "2024", "open", "2", "350.31", "450.50", "100.20"},
		}, p.Tables[TableSeasons].Rows)
		assert.Len(t, p.Series[0].Data, 3)
	})

	t.Run("date range", func(t *testing.T) {
		from, to := day(2024, 6, 1), day(2024, 6, 30)
		p, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from, To: &to})
		require.NoError(t, err)

		invested, _ := p.KPI(KPITotalInvested)
		margin, _ := p.KPI(KPINetMargin)
		assert.Equal(t, "250.21", invested.Value)
		assert.Equal(t, "50.30", margin.Value)
		assert.Equal(t, [][2]string{{"2024-06-01", "250.21"}}, points(p.Series[0]))
		assert.Equal(t, [][2]string{{"2024-06-01", "300.50"}}, points(p.Series[1]))
	})

	t.Run("open ended range", func(t *testing.T) {
		from := day(2024, 7, 1)
		p, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from})
		require.NoError(t, err)

		invested, _ := p.KPI(KPITotalInvested)
		sold, _ := p.KPI(KPITotalSold)
		assert.Equal(t, "0.00", invested.Value)
		assert.Equal(t, "150.00", sold.Value)
		assert.Equal(t, [][2]string{{"2024-07-01", "150.00"}}, points(p.Series[1]))
	})

	t.Run("range too long", func(t *testing.T) {
		from, to := day(1, 1, 1), day(9999, 12, 31)
		_, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from, To: &to})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)

		_, err = agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})

	t.Run("longest accepted range", func(t *testing.T) {
		from, to := day(1925, 1, 1), day(2024, 12, 31)
		p, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from, To: &to})
		require.NoError(t, err)
		assert.Len(t, p.Series[0].Data, MaxSeriesMonths)
	})

	t.Run("inverted range", func(t *testing.T) {
		from, to := day(2024, 7, 1), day(2024, 6, 1)
		_, err := agg.ComputeOrchardReport(context.Background(), f.orchardID, farm.DateRange{From: &from, To: &to})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})
}

func TestAggregator_Deterministic(t *testing.T) {
	f := newFarmFixture()

	first, err := NewAggregator(f.repo, WithLoadWorkers(1)).ComputeSeasonReport(context.Background(), f.seasonID)
	require.NoError(t, err)
	second, err := NewAggregator(f.repo, WithLoadWorkers(8)).ComputeSeasonReport(context.Background(), f.seasonID)
	require.NoError(t, err)

	a, err := first.Encode()
	require.NoError(t, err)
	b, err := second.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAggregator_Errors(t *testing.T) {
	t.Run("unknown scope is not found", func(t *testing.T) {
		agg := NewAggregator(newMemoryFarm())
		_, err := agg.ComputeHarvestReport(context.Background(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = agg.ComputeSeasonReport(context.Background(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = agg.ComputeOrchardReport(context.Background(), uuid.New(), farm.DateRange{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("data source failure is a compute error", func(t *testing.T) {
		f := newFarmFixture()
		cause := errors.New("connection reset")
		f.repo.failWith = cause
		_, err := NewAggregator(f.repo).ComputeHarvestReport(context.Background(), f.harvest1)
		assert.ErrorIs(t, err, shared.ErrComputeError)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("foreign record is a compute error", func(t *testing.T) {
		f := newFarmFixture()
		f.repo.sales[f.harvest1][0].HarvestID = uuid.New()
		_, err := NewAggregator(f.repo).ComputeHarvestReport(context.Background(), f.harvest1)
		assert.ErrorIs(t, err, shared.ErrComputeError)
	})

	t.Run("negative quantity is a compute error", func(t *testing.T) {
		f := newFarmFixture()
		f.repo.sales[f.harvest1][0].Quantity = dec("-1")
		_, err := NewAggregator(f.repo).ComputeHarvestReport(context.Background(), f.harvest1)
		assert.ErrorIs(t, err, shared.ErrComputeError)
	})
}
