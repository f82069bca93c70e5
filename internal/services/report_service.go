package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
)

const (
	defaultRecentOrderWindow = 10
	maxTrendWindow           = 366
	exportDownloadExpiry     = time.Hour
)

var (
	// ErrReportInvalidInput signals an unknown period, granularity or window.
	ErrReportInvalidInput = errors.New("report: invalid input")
	// ErrReportUnavailable wraps ledger or export storage failures.
	ErrReportUnavailable = errors.New("report: unavailable")
)

// SummaryPeriod selects the headline window of a summary.
type SummaryPeriod string

const (
	SummaryDay   SummaryPeriod = "day"
	SummaryWeek  SummaryPeriod = "week"
	SummaryMonth SummaryPeriod = "month"
	SummaryYear  SummaryPeriod = "year"
)

// DashboardPeriod selects the dashboard window.
type DashboardPeriod string

const (
	DashboardToday     DashboardPeriod = "today"
	DashboardYesterday DashboardPeriod = "yesterday"
	DashboardWeek      DashboardPeriod = "week"
	DashboardMonth     DashboardPeriod = "month"
	DashboardYear      DashboardPeriod = "year"
)

// SalesSummary compares a period's income with the period before it.
type SalesSummary struct {
	Period        SummaryPeriod
	Range         domain.TimeRange
	PreviousRange domain.TimeRange
	Total         domain.Amount
	PreviousTotal domain.Amount
	Orders        int
	Variance      *float64
}

// AmountMetric is a money figure with its comparison.
type AmountMetric struct {
	Current  domain.Amount
	Previous domain.Amount
	Variance *float64
}

// CountMetric is a count with its comparison.
type CountMetric struct {
	Current  int
	Previous int
	Variance *float64
}

// Dashboard is the landing screen payload.
type Dashboard struct {
	Period          DashboardPeriod
	Range           domain.TimeRange
	PreviousRange   domain.TimeRange
	Income          AmountMetric
	Orders          CountMetric
	Customers       CountMetric
	Hourly          [24]domain.Amount
	RecentCustomers []CustomerRollup
}

// Overview is the reports screen headline.
type Overview struct {
	Daily       domain.Amount
	Weekly      domain.Amount
	Monthly     domain.Amount
	Trend       []TrendBucket
	Categories  CategoryTotals
	GeneratedAt time.Time
}

// SalesFilter narrows the sales list.
type SalesFilter struct {
	Range  domain.TimeRange
	Search string
	Page   pagination.Page
}

// SalesRow is one paid line item.
type SalesRow struct {
	OrderID       string
	CustomerName  string
	CustomerPhone string
	Vehicle       domain.Vehicle
	ItemName      string
	Price         domain.Amount
	Custom        bool
	Operator      string
	CreatedAt     time.Time
}

// SalesExport locates a generated CSV.
type SalesExport struct {
	Object   string
	Rows     int
	Range    domain.TimeRange
	Download pstorage.SignedURL
}

// OrderReader is the ledger read surface used by reports.
type OrderReader interface {
	Scan(ctx context.Context, filter domain.OrderFilter) ([]Order, error)
	Latest(ctx context.Context, limit int) ([]Order, error)
}

// ReportServiceDeps bundles collaborators required to construct the report service.
type ReportServiceDeps struct {
	Orders            OrderReader
	Location          *time.Location
	RecentOrderWindow int
	Writer            ObjectWriter
	URLs              URLSigner
	ExportsBucket     string
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type reportService struct {
	orders OrderReader
	loc    *time.Location
	recent int
	writer ObjectWriter
	urls   URLSigner
	bucket string
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var _ ReportService = (*reportService)(nil)

// NewReportService constructs the sales reporting service.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order reader is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	recent := deps.RecentOrderWindow
	if recent <= 0 {
		recent = defaultRecentOrderWindow
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &reportService{
		orders: deps.Orders,
		loc:    loc,
		recent: recent,
		writer: deps.Writer,
		urls:   deps.URLs,
		bucket: strings.TrimSpace(deps.ExportsBucket),
		clock:  clock,
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *reportService) Summary(ctx context.Context, period SummaryPeriod, now time.Time) (SalesSummary, error) {
	current, previous, err := summaryRanges(period, now.In(s.loc))
	if err != nil {
		return SalesSummary{}, err
	}
	orders, err := s.scan(ctx, domain.TimeRange{From: previous.From, To: current.To}, "")
	if err != nil {
		return SalesSummary{}, err
	}
	summary := SalesSummary{
		Period:        period,
		Range:         current,
		PreviousRange: previous,
		Total:         TotalsForRange(orders, current.From, current.To),
		PreviousTotal: TotalsForRange(orders, previous.From, previous.To),
		Orders:        len(ordersIn(orders, current)),
	}
	summary.Variance = Variance(summary.Total, summary.PreviousTotal)
	return summary, nil
}

func (s *reportService) Trend(ctx context.Context, granularity Granularity, window int, now time.Time) ([]TrendBucket, error) {
	if _, ok := ParseGranularity(string(granularity)); !ok {
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrReportInvalidInput, granularity)
	}
	if window <= 0 || window > maxTrendWindow {
		return nil, fmt.Errorf("%w: window must be between 1 and %d", ErrReportInvalidInput, maxTrendWindow)
	}
	local := now.In(s.loc)
	first := shiftBucket(granularity, bucketStart(granularity, local), -(window - 1))
	orders, err := s.scan(ctx, domain.TimeRange{From: first, To: local}, "")
	if err != nil {
		return nil, err
	}
	return Trend(orders, granularity, window, local, s.loc), nil
}

func (s *reportService) Categories(ctx context.Context, window domain.TimeRange) (CategoryTotals, error) {
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrReportInvalidInput)
	}
	orders, err := s.scan(ctx, window, "")
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(orders, window.From, window.To), nil
}

func (s *reportService) RecentCustomers(ctx context.Context) ([]CustomerRollup, error) {
	recent, err := s.orders.Latest(ctx, s.recent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}
	return RecentCustomerRollup(recent), nil
}

func (s *reportService) Dashboard(ctx context.Context, period DashboardPeriod, now time.Time) (Dashboard, error) {
	current, previous, err := dashboardRanges(period, now.In(s.loc))
	if err != nil {
		return Dashboard{}, err
	}
	orders, err := s.scan(ctx, domain.TimeRange{From: previous.From, To: current.To}, "")
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.RecentCustomers(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	cur, prev := ordersIn(orders, current), ordersIn(orders, previous)
	dash := Dashboard{
		Period:          period,
		Range:           current,
		PreviousRange:   previous,
		Hourly:          HourOfDayProfile(cur, s.loc),
		RecentCustomers: recent,
	}
	dash.Income = AmountMetric{Current: TotalsForRange(cur, current.From, current.To), Previous: TotalsForRange(prev, previous.From, previous.To)}
	dash.Income.Variance = Variance(dash.Income.Current, dash.Income.Previous)
	dash.Orders = countMetric(len(cur), len(prev))
	dash.Customers = countMetric(uniqueCustomers(cur), uniqueCustomers(prev))
	return dash, nil
}

func (s *reportService) Overview(ctx context.Context, now time.Time) (Overview, error) {
	local := now.In(s.loc)
	today := startOfDay(local)
	weekStart := today.AddDate(0, 0, -6)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	from := weekStart
	if monthStart.Before(from) {
		from = monthStart
	}
	orders, err := s.scan(ctx, domain.TimeRange{From: from, To: local}, "")
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Daily:       TotalsForRange(orders, today, local),
		Weekly:      TotalsForRange(orders, weekStart, local),
		Monthly:     TotalsForRange(orders, monthStart, local),
		Trend:       Trend(orders, GranularityDay, 7, local, s.loc),
		Categories:  CategoryBreakdown(orders, weekStart, local),
		GeneratedAt: now.UTC(),
	}, nil
}

func (s *reportService) Sales(ctx context.Context, filter SalesFilter) (domain.OffsetPage[SalesRow], error) {
	rows, err := s.salesRows(ctx, filter.Range, filter.Search)
	if err != nil {
		return domain.OffsetPage[SalesRow]{}, err
	}
	page := filter.Page
	if page.Number <= 0 {
		page.Number = 1
	}
	if page.Size <= 0 {
		page.Size = pagination.DefaultPageSize
	}
	start, end := page.Window(len(rows))
	return domain.OffsetPage[SalesRow]{Items: rows[start:end], Page: page.Number, PageSize: page.Size, Total: len(rows)}, nil
}

func (s *reportService) ExportSales(ctx context.Context, window domain.TimeRange) (SalesExport, error) {
	if s.writer == nil || s.urls == nil || s.bucket == "" {
		return SalesExport{}, fmt.Errorf("%w: exports are not configured", ErrReportUnavailable)
	}
	if window.From.IsZero() || window.To.IsZero() || window.To.Before(window.From) {
		return SalesExport{}, fmt.Errorf("%w: export needs a closed range", ErrReportInvalidInput)
	}
	rows, err := s.salesRows(ctx, window, "")
	if err != nil {
		return SalesExport{}, err
	}
	data, err := s.encodeCSV(rows)
	if err != nil {
		return SalesExport{}, fmt.Errorf("%w: encode csv: %v", ErrReportUnavailable, err)
	}

	now := s.clock()
	object, err := pstorage.SalesExportPath(now, s.newID())
	if err != nil {
		return SalesExport{}, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}
	if err := s.writer.Write(ctx, s.bucket, object, "text/csv", data); err != nil {
		return SalesExport{}, fmt.Errorf("%w: write export: %v", ErrReportUnavailable, err)
	}
	fileName := fmt.Sprintf("sales-%s-%s.csv", window.From.In(s.loc).Format("20060102"), window.To.In(s.loc).Format("20060102"))
	download, err := s.urls.DownloadURL(ctx, s.bucket, object, pstorage.DownloadRequest{FileName: fileName, ExpiresIn: exportDownloadExpiry})
	if err != nil {
		return SalesExport{}, fmt.Errorf("%w: sign download: %v", ErrReportUnavailable, err)
	}
	s.logger(ctx, "report.sales.exported", map[string]any{"object": object, "rows": len(rows)})
	return SalesExport{Object: object, Rows: len(rows), Range: window, Download: download}, nil
}

func (s *reportService) ExportPreviousDay(ctx context.Context, now time.Time) (SalesExport, error) {
	today := startOfDay(now.In(s.loc))
	yesterday := today.AddDate(0, 0, -1)
	return s.ExportSales(ctx, domain.TimeRange{From: yesterday, To: today.Add(-time.Nanosecond)})
}

func (s *reportService) salesRows(ctx context.Context, window domain.TimeRange, search string) ([]SalesRow, error) {
	orders, err := s.scan(ctx, window, domain.PaymentPaid)
	if err != nil {
		return nil, err
	}
	search = strings.TrimSpace(search)
	rows := make([]SalesRow, 0, len(orders))
	for _, order := range orders {
		for _, item := range order.Items {
			if search != "" && !textutil.ContainsFold(order.CustomerName, search) &&
				!textutil.ContainsFold(item.Name, search) && !textutil.ContainsFold(order.Vehicle.Plate, search) {
				continue
			}
			rows = append(rows, SalesRow{
				OrderID:       order.ID,
				CustomerName:  order.CustomerName,
				CustomerPhone: order.CustomerPhone,
				Vehicle:       order.Vehicle,
				ItemName:      item.Name,
				Price:         item.Price,
				Custom:        item.Custom,
				Operator:      order.Operator.Name,
				CreatedAt:     order.CreatedAt,
			})
		}
	}
	return rows, nil
}

func (s *reportService) encodeCSV(rows []SalesRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"order_id", "created_at", "customer", "phone", "vehicle", "plate", "item", "custom", "price", "price_display", "operator"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		vehicle := strings.TrimSpace(strings.Join([]string{row.Vehicle.Make, row.Vehicle.Model, row.Vehicle.Year}, " "))
		record := []string{
			row.OrderID,
			row.CreatedAt.In(s.loc).Format(time.RFC3339),
			row.CustomerName,
			row.CustomerPhone,
			vehicle,
			row.Vehicle.Plate,
			row.ItemName,
			fmt.Sprintf("%t", row.Custom),
			row.Price.Decimal(),
			row.Price.Display(),
			row.Operator,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (s *reportService) scan(ctx context.Context, window domain.TimeRange, status domain.PaymentStatus) ([]Order, error) {
	orders, err := s.orders.Scan(ctx, domain.OrderFilter{PaymentStatus: status, Created: window})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidInput) {
			return nil, fmt.Errorf("%w: %v", ErrReportInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}
	return orders, nil
}

func summaryRanges(period SummaryPeriod, now time.Time) (current, previous domain.TimeRange, err error) {
	today := startOfDay(now)
	switch period {
	case SummaryDay:
		return dayRange(today, 1), dayRange(today.AddDate(0, 0, -1), 1), nil
	case SummaryWeek:
		start := today.AddDate(0, 0, -6)
		return dayRange(start, 7), dayRange(start.AddDate(0, 0, -7), 7), nil
	case SummaryMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return monthRange(start), monthRange(start.AddDate(0, -1, 0)), nil
	case SummaryYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return yearRange(start), yearRange(start.AddDate(-1, 0, 0)), nil
	}
	return domain.TimeRange{}, domain.TimeRange{}, fmt.Errorf("%w: unknown period %q", ErrReportInvalidInput, period)
}

// dashboardRanges compares day and week views with the same days one week earlier, months
// with the previous month and years with the previous year. Weeks run Sunday to Saturday.
func dashboardRanges(period DashboardPeriod, now time.Time) (current, previous domain.TimeRange, err error) {
	today := startOfDay(now)
	weekBack := func(r domain.TimeRange) domain.TimeRange {
		return domain.TimeRange{From: r.From.AddDate(0, 0, -7), To: r.To.AddDate(0, 0, -7)}
	}
	switch period {
	case DashboardToday:
		current = dayRange(today, 1)
		return current, weekBack(current), nil
	case DashboardYesterday:
		current = dayRange(today.AddDate(0, 0, -1), 1)
		return current, weekBack(current), nil
	case DashboardWeek:
		current = dayRange(today.AddDate(0, 0, -int(today.Weekday())), 7)
		return current, weekBack(current), nil
	case DashboardMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return monthRange(start), monthRange(start.AddDate(0, -1, 0)), nil
	case DashboardYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return yearRange(start), yearRange(start.AddDate(-1, 0, 0)), nil
	}
	return domain.TimeRange{}, domain.TimeRange{}, fmt.Errorf("%w: unknown period %q", ErrReportInvalidInput, period)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayRange(start time.Time, days int) domain.TimeRange {
	return domain.TimeRange{From: start, To: start.AddDate(0, 0, days).Add(-time.Nanosecond)}
}

func monthRange(start time.Time) domain.TimeRange {
	return domain.TimeRange{From: start, To: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

func yearRange(start time.Time) domain.TimeRange {
	return domain.TimeRange{From: start, To: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
}

func ordersIn(orders []Order, window domain.TimeRange) []Order {
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		if window.Contains(order.CreatedAt) {
			out = append(out, order)
		}
	}
	return out
}

func countMetric(current, previous int) CountMetric {
	return CountMetric{Current: current, Previous: previous, Variance: Variance(domain.Amount(current), domain.Amount(previous))}
}

// uniqueCustomers keys customers by phone, else by name.
func uniqueCustomers(orders []Order) int {
	seen := make(map[string]struct{}, len(orders))
	for _, order := range orders {
		key := strings.TrimSpace(order.CustomerPhone)
		if key == "" {
			key = textutil.Fold(order.CustomerName)
		}
		if key != "" {
			seen[key] = struct{}{}
		}
	}
	return len(seen)
}
