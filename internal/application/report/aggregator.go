package report

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KPI labels, in payload order
const (
	KPITotalInvested = "Total invested"
	KPITotalSold     = "Total sold"
	KPINetMargin     = "Net margin"
	KPIMarginPercent = "Margin %"
)

// Table names
const (
	TableInvestments = "investments"
	TableSales       = "sales"
	TableHarvests    = "harvests"
	TableSeasons     = "seasons"
)

// Series ids
const (
	SeriesInvested = "invested"
	SeriesSold     = "sold"
)

const (
	defaultCurrency    = "USD"
	defaultLoadWorkers = 4
	grandTotalLabel    = "Grand total"
)

// Aggregator computes report payloads from the farm data source. It holds no
// mutable state and is safe for concurrent use.
type Aggregator struct {
	repo        farm.QueryRepository
	currency    string
	loadWorkers int
	logger      *zap.Logger
}

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithCurrency sets the currency code used as the unit of money KPIs
func WithCurrency(code string) AggregatorOption {
	return func(a *Aggregator) {
		if code != "" {
			a.currency = code
		}
	}
}

// WithLoadWorkers bounds how many harvest ledgers are read concurrently
func WithLoadWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.loadWorkers = n
		}
	}
}

// WithAggregatorLogger sets the logger
func WithAggregatorLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates a new Aggregator
func NewAggregator(repo farm.QueryRepository, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		repo:        repo,
		currency:    defaultCurrency,
		loadWorkers: defaultLoadWorkers,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// harvestLedger is one harvest with its investments and sales
type harvestLedger struct {
	harvest     farm.Harvest
	investments []farm.Investment
	sales       []farm.Sale
}

// totals folds the ledger's records that fall within r
func (l *harvestLedger) totals(r farm.DateRange) *totals {
	t := newTotals()
	for _, inv := range l.investments {
		if r.Contains(inv.Date) {
			t.addInvestment(inv)
		}
	}
	for _, s := range l.sales {
		if r.Contains(s.Date) {
			t.addSale(s)
		}
	}
	return t
}

// ===================== Harvest Report =====================

// ComputeHarvestReport computes KPIs, investment and sales breakdowns, and the
// monthly invested vs sold trend of one harvest.
func (a *Aggregator) ComputeHarvestReport(ctx context.Context, harvestID uuid.UUID) (*report.Payload, error) {
	harvest, err := a.repo.GetHarvest(ctx, harvestID)
	if err != nil {
		return nil, scopeError(err, "load harvest")
	}

	ledgers, err := a.loadLedgers(ctx, []farm.Harvest{*harvest})
	if err != nil {
		return nil, err
	}
	t := ledgers[0].totals(farm.DateRange{})

	p := report.NewPayload()
	p.KPIs = a.kpis(t)
	p.Tables[TableInvestments] = investmentTable(t)
	p.Tables[TableSales] = salesTable(t)

	start, end := harvest.Span(t.lastDate)
	p.Series = monthlySeries(t, start, end)

	a.logger.Debug("Harvest report computed",
		zap.String("harvest_id", harvestID.String()),
		zap.Int("investments", t.investCount),
		zap.Int("sales", t.saleCount),
	)
	return p, nil
}

// ===================== Season Report =====================

// ComputeSeasonReport aggregates every harvest of a season, one table row per
// harvest followed by the grand total.
func (a *Aggregator) ComputeSeasonReport(ctx context.Context, seasonID uuid.UUID) (*report.Payload, error) {
	if _, err := a.repo.GetSeason(ctx, seasonID); err != nil {
		return nil, scopeError(err, "load season")
	}

	harvests, err := a.repo.ListHarvestsBySeason(ctx, seasonID)
	if err != nil {
		return nil, scopeError(err, "list harvests")
	}
	sortHarvests(harvests)

	ledgers, err := a.loadLedgers(ctx, harvests)
	if err != nil {
		return nil, err
	}

	all := newTotals()
	tbl := report.NewTable("Harvest", "Start", "End", "Status", "Invested", "Sold", "Net margin")
	var spanStart, spanEnd time.Time
	for i := range ledgers {
		l := &ledgers[i]
		t := l.totals(farm.DateRange{})
		all.merge(t)

		start, end := l.harvest.Span(t.lastDate)
		if spanStart.IsZero() || start.Before(spanStart) {
			spanStart = start
		}
		if end.After(spanEnd) {
			spanEnd = end
		}

		endText := ""
		if l.harvest.EndDate != nil {
			endText = report.FormatDate(*l.harvest.EndDate)
		}
		tbl.Rows = append(tbl.Rows, []string{
			harvestLabel(l.harvest),
			report.FormatDate(l.harvest.StartDate),
			endText,
			string(l.harvest.Status),
			report.FormatMoney(t.invested),
			report.FormatMoney(t.sold),
			report.FormatMoney(t.margin()),
		})
	}
	tbl.Totals = []string{
		grandTotalLabel, "", "", "",
		report.FormatMoney(all.invested),
		report.FormatMoney(all.sold),
		report.FormatMoney(all.margin()),
	}

	p := report.NewPayload()
	p.KPIs = a.kpis(all)
	p.Tables[TableHarvests] = tbl
	if len(ledgers) > 0 {
		p.Series = monthlySeries(all, spanStart, spanEnd)
	}

	a.logger.Debug("Season report computed",
		zap.String("season_id", seasonID.String()),
		zap.Int("harvests", len(ledgers)),
	)
	return p, nil
}

// ===================== Orchard Report =====================

// ComputeOrchardReport aggregates every season of an orchard, one table row
// per season. When dateRange is set only investments and sales dated within
// it are counted.
func (a *Aggregator) ComputeOrchardReport(ctx context.Context, orchardID uuid.UUID, dateRange farm.DateRange) (*report.Payload, error) {
	if !dateRange.Validate() {
		return nil, shared.InvalidParameterf("date range start is after its end")
	}
	if dateRange.From != nil && dateRange.To != nil && monthSpan(*dateRange.From, *dateRange.To) > MaxSeriesMonths {
		return nil, rangeTooLong()
	}
	if _, err := a.repo.GetOrchard(ctx, orchardID); err != nil {
		return nil, scopeError(err, "load orchard")
	}

	seasons, err := a.repo.ListSeasonsByOrchard(ctx, orchardID)
	if err != nil {
		return nil, scopeError(err, "list seasons")
	}
	sort.SliceStable(seasons, func(i, j int) bool {
		if seasons[i].Year != seasons[j].Year {
			return seasons[i].Year < seasons[j].Year
		}
		if seasons[i].Name != seasons[j].Name {
			return seasons[i].Name < seasons[j].Name
		}
		return seasons[i].ID.String() < seasons[j].ID.String()
	})

	all := newTotals()
	tbl := report.NewTable("Season", "Year", "Status", "Harvests", "Invested", "Sold", "Net margin")
	for _, season := range seasons {
		harvests, err := a.repo.ListHarvestsBySeason(ctx, season.ID)
		if err != nil {
			return nil, scopeError(err, "list harvests")
		}
		sortHarvests(harvests)

		ledgers, err := a.loadLedgers(ctx, harvests)
		if err != nil {
			return nil, err
		}

		st := newTotals()
		for i := range ledgers {
			st.merge(ledgers[i].totals(dateRange))
		}
		all.merge(st)

		tbl.Rows = append(tbl.Rows, []string{
			seasonLabel(season),
			strconv.Itoa(season.Year),
			string(season.Status),
			strconv.Itoa(len(harvests)),
			report.FormatMoney(st.invested),
			report.FormatMoney(st.sold),
			report.FormatMoney(st.margin()),
		})
	}
	tbl.Totals = []string{
		grandTotalLabel, "", "", "",
		report.FormatMoney(all.invested),
		report.FormatMoney(all.sold),
		report.FormatMoney(all.margin()),
	}

	p := report.NewPayload()
	p.KPIs = a.kpis(all)
	p.Tables[TableSeasons] = tbl

	start, end := all.firstDate, all.lastDate
	if dateRange.From != nil {
		start = *dateRange.From
	}
	if dateRange.To != nil {
		end = *dateRange.To
	}
	if !all.firstDate.IsZero() || !dateRange.IsZero() {
		if start.IsZero() {
			start = end
		}
		if end.IsZero() {
			end = start
		}
		// an open-ended range may still reach far past the data
		if monthSpan(start, end) > MaxSeriesMonths {
			return nil, rangeTooLong()
		}
		p.Series = monthlySeries(all, start, end)
	}

	a.logger.Debug("Orchard report computed",
		zap.String("orchard_id", orchardID.String()),
		zap.Int("seasons", len(seasons)),
	)
	return p, nil
}

// ===================== Helpers =====================

// loadLedgers reads investments and sales of every harvest concurrently.
// Results keep the order of harvests.
func (a *Aggregator) loadLedgers(ctx context.Context, harvests []farm.Harvest) ([]harvestLedger, error) {
	ledgers := make([]harvestLedger, len(harvests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.loadWorkers)

	for i, h := range harvests {
		ledgers[i].harvest = h
		g.Go(func() error {
			investments, err := a.repo.ListInvestmentsByHarvest(gctx, h.ID)
			if err != nil {
				return scopeError(err, "list investments")
			}
			for _, inv := range investments {
				if err := validateInvestment(inv, h.ID); err != nil {
					return err
				}
			}
			sales, err := a.repo.ListSalesByHarvest(gctx, h.ID)
			if err != nil {
				return scopeError(err, "list sales")
			}
			for _, s := range sales {
				if err := validateSale(s, h.ID); err != nil {
					return err
				}
			}
			ledgers[i].investments = investments
			ledgers[i].sales = sales
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (a *Aggregator) kpis(t *totals) []report.KPI {
	return []report.KPI{
		{Label: KPITotalInvested, Value: report.FormatMoney(t.invested), Unit: a.currency},
		{Label: KPITotalSold, Value: report.FormatMoney(t.sold), Unit: a.currency},
		{Label: KPINetMargin, Value: report.FormatMoney(t.margin()), Unit: a.currency},
		{Label: KPIMarginPercent, Value: report.FormatMoney(t.marginPercent()), Unit: "%"},
	}
}

func investmentTable(t *totals) report.Table {
	tbl := report.NewTable("Category", "Entries", "Amount")
	for _, name := range sortedKeys(t.byCategory) {
		b := t.byCategory[name]
		tbl.Rows = append(tbl.Rows, []string{name, strconv.Itoa(b.count), report.FormatMoney(b.amount)})
	}
	tbl.Totals = []string{grandTotalLabel, strconv.Itoa(t.investCount), report.FormatMoney(t.invested)}
	return tbl
}

func salesTable(t *totals) report.Table {
	tbl := report.NewTable("Buyer", "Entries", "Quantity", "Amount")
	for _, name := range sortedKeys(t.byBuyer) {
		b := t.byBuyer[name]
		tbl.Rows = append(tbl.Rows, []string{
			name,
			strconv.Itoa(b.count),
			report.FormatQuantity(b.quantity),
			report.FormatMoney(b.amount),
		})
	}
	tbl.Totals = []string{grandTotalLabel, strconv.Itoa(t.saleCount), report.FormatQuantity(t.quantity), report.FormatMoney(t.sold)}
	return tbl
}

// monthlySeries builds invested and sold series with one point per month of
// the span. Movements dated outside the span are left out of the series.
func monthlySeries(t *totals, start, end time.Time) []report.Series {
	months := monthsBetween(start, end)
	invested := report.Series{ID: SeriesInvested, Label: "Invested", Type: report.SeriesTypeBar, Data: make([]report.Point, 0, len(months))}
	sold := report.Series{ID: SeriesSold, Label: "Sold", Type: report.SeriesTypeBar, Data: make([]report.Point, 0, len(months))}
	for _, m := range months {
		x := report.FormatDate(m)
		invested.Data = append(invested.Data, report.Point{X: x, Y: report.FormatMoney(valueAt(t.investedByMo, m))})
		sold.Data = append(sold.Data, report.Point{X: x, Y: report.FormatMoney(valueAt(t.soldByMo, m))})
	}
	return []report.Series{invested, sold}
}

func valueAt(m map[time.Time]decimal.Decimal, k time.Time) decimal.Decimal {
	if v, ok := m[k]; ok {
		return v
	}
	return decimal.Zero
}

func sortHarvests(harvests []farm.Harvest) {
	sort.SliceStable(harvests, func(i, j int) bool {
		if !harvests[i].StartDate.Equal(harvests[j].StartDate) {
			return harvests[i].StartDate.Before(harvests[j].StartDate)
		}
		return harvests[i].ID.String() < harvests[j].ID.String()
	})
}

func harvestLabel(h farm.Harvest) string {
	if h.Name != "" {
		return h.Name
	}
	return h.ID.String()
}

func seasonLabel(s farm.Season) string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(s.Year)
}

// scopeError keeps domain errors such as NOT_FOUND intact and turns anything
// else from the data source into a COMPUTE_ERROR.
func scopeError(err error, op string) error {
	if shared.ErrorCode(err) != "" {
		return err
	}
	return shared.WrapDomainError(shared.CodeComputeError, "failed to "+op, err)
}
