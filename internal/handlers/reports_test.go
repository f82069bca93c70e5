package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/services"
)

var reportNow = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

func reportHandlers(reports services.ReportService) *ReportHandlers {
	return NewReportHandlers(reports, WithReportClock(func() time.Time { return reportNow }))
}

func TestReportSummaryDefaultsToDay(t *testing.T) {
	var gotPeriod services.SummaryPeriod
	variance := 150.0
	reports := &stubReports{summaryFn: func(_ context.Context, period services.SummaryPeriod, now time.Time) (services.SalesSummary, error) {
		gotPeriod = period
		if !now.Equal(reportNow) {
			t.Errorf("unexpected now %s", now)
		}
		return services.SalesSummary{Period: period, Total: 10000, PreviousTotal: 4000, Orders: 2, Variance: &variance}, nil
	}}
	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary", nil), "c1", auth.RoleCashier)

	rr := serve(t, WithReportRoutes, reportHandlers(reports).Routes, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotPeriod != services.SummaryDay {
		t.Fatalf("expected day, got %q", gotPeriod)
	}
	body := decodeResponse[map[string]any](t, rr)
	if body["total"] != "100.00" || body["variance"] != 150.0 || body["orders"] != 2.0 {
		t.Fatalf("unexpected summary %v", body)
	}
}

func TestReportInvalidInputs(t *testing.T) {
	reports := &stubReports{
		summaryFn: func(context.Context, services.SummaryPeriod, time.Time) (services.SalesSummary, error) {
			return services.SalesSummary{}, services.ErrReportInvalidInput
		},
		trendFn: func(context.Context, services.Granularity, int, time.Time) ([]services.TrendBucket, error) {
			t.Fatal("trend must not be called")
			return nil, nil
		},
	}
	for _, path := range []string{
		"/api/v1/reports/summary?period=decade",
		"/api/v1/reports/trend?granularity=minute",
		"/api/v1/reports/trend?window=seven",
		"/api/v1/reports/sales?from=yesterday",
	} {
		req := signedIn(httptest.NewRequest(http.MethodGet, path, nil), "c1", auth.RoleCashier)
		if rr := serve(t, WithReportRoutes, reportHandlers(reports).Routes, req); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestReportTrendAndCategories(t *testing.T) {
	var window domain.TimeRange
	reports := &stubReports{
		trendFn: func(_ context.Context, g services.Granularity, n int, _ time.Time) ([]services.TrendBucket, error) {
			if g != services.GranularityWeek || n != 4 {
				t.Errorf("unexpected trend args %s %d", g, n)
			}
			return []services.TrendBucket{{Label: "W42", Start: reportNow, Total: 3000}}, nil
		},
		categoryFn: func(_ context.Context, r domain.TimeRange) (services.CategoryTotals, error) {
			window = r
			return services.CategoryTotals{services.CategoryGold: 10000, services.CategoryOthers: 1500}, nil
		},
	}
	routes := reportHandlers(reports).Routes

	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/trend?granularity=week&window=4", nil), "c1", auth.RoleCashier)
	rr := serve(t, WithReportRoutes, routes, req)
	body := decodeResponse[struct {
		Buckets []trendBucketPayload `json:"buckets"`
	}](t, rr)
	if len(body.Buckets) != 1 || body.Buckets[0].TotalMinor != 3000 {
		t.Fatalf("unexpected buckets %+v", body.Buckets)
	}

	req = signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/categories", nil), "c1", auth.RoleCashier)
	rr = serve(t, WithReportRoutes, routes, req)
	if !window.From.Equal(time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)) || !window.To.Equal(reportNow) {
		t.Fatalf("expected trailing week, got %+v", window)
	}
	cats := decodeResponse[struct {
		Categories []categoryPayload `json:"categories"`
	}](t, rr)
	if len(cats.Categories) != 4 || cats.Categories[0].Label != "Silver" || cats.Categories[1].TotalMinor != 10000 || cats.Categories[3].TotalMinor != 1500 {
		t.Fatalf("unexpected categories %+v", cats.Categories)
	}
}

func TestReportDashboardHourly(t *testing.T) {
	reports := &stubReports{dashboardFn: func(_ context.Context, period services.DashboardPeriod, _ time.Time) (services.Dashboard, error) {
		if period != services.DashboardWeek {
			t.Errorf("unexpected period %q", period)
		}
		var dash services.Dashboard
		dash.Period = period
		dash.Hourly[10] = 4000
		dash.Income = services.AmountMetric{Current: 10000, Previous: 4000}
		dash.Customers = services.CountMetric{Current: 2, Previous: 1}
		return dash, nil
	}}
	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/dashboard?period=week", nil), "c1", auth.RoleCashier)

	rr := serve(t, WithReportRoutes, reportHandlers(reports).Routes, req)
	body := decodeResponse[struct {
		Income    amountMetricPayload `json:"income"`
		Customers countMetricPayload  `json:"customers"`
		Hourly    []hourPayload       `json:"hourly"`
	}](t, rr)
	if body.Income.CurrentMinor != 10000 || body.Customers.Current != 2 {
		t.Fatalf("unexpected metrics %+v", body)
	}
	if len(body.Hourly) != 24 || body.Hourly[10].TotalMinor != 4000 {
		t.Fatalf("unexpected hourly profile %+v", body.Hourly)
	}
}

func TestReportSalesAndExport(t *testing.T) {
	var gotFilter services.SalesFilter
	var gotExport domain.TimeRange
	reports := &stubReports{
		salesFn: func(_ context.Context, filter services.SalesFilter) (domain.OffsetPage[services.SalesRow], error) {
			gotFilter = filter
			return domain.OffsetPage[services.SalesRow]{
				Items: []services.SalesRow{{OrderID: "ord-1", ItemName: "Gold Wash", Price: 10000, CreatedAt: reportNow}},
				Page:  2, PageSize: 1, Total: 3,
			}, nil
		},
		exportFn: func(_ context.Context, r domain.TimeRange) (services.SalesExport, error) {
			gotExport = r
			return services.SalesExport{Object: "exports/sales/2026/10/x.csv", Rows: 3, Range: r,
				Download: pstorage.SignedURL{URL: "https://signed.example/get", ExpiresAt: reportNow.Add(time.Hour)}}, nil
		},
	}
	routes := reportHandlers(reports).Routes

	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?q=gold&page=2&pageSize=1", nil), "c1", auth.RoleCashier)
	rr := serve(t, WithReportRoutes, routes, req)
	if rr.Code != http.StatusOK || gotFilter.Search != "gold" || gotFilter.Page.Number != 2 || gotFilter.Page.Size != 1 {
		t.Fatalf("unexpected sales call %d %+v", rr.Code, gotFilter)
	}

	body := `{"from":"2026-10-01","to":"2026-10-15"}`
	req = signedIn(httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales:export", strings.NewReader(body)), "c1", auth.RoleCashier)
	if rr := serve(t, WithReportRoutes, routes, req); rr.Code != http.StatusForbidden {
		t.Fatalf("cashier must not export, got %d", rr.Code)
	}

	req = signedIn(httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales:export", strings.NewReader(body)), "a1", auth.RoleAdmin)
	rr = serve(t, WithReportRoutes, routes, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotExport.To.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)) {
		t.Fatalf("expected inclusive export end, got %s", gotExport.To)
	}
	if resp := decodeResponse[exportResponse](t, rr); resp.Rows != 3 || resp.DownloadURL != "https://signed.example/get" {
		t.Fatalf("unexpected export response %+v", resp)
	}
}

func TestReportUnavailable(t *testing.T) {
	reports := &stubReports{summaryFn: func(context.Context, services.SummaryPeriod, time.Time) (services.SalesSummary, error) {
		return services.SalesSummary{}, services.ErrReportUnavailable
	}}
	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary?period=week", nil), "c1", auth.RoleCashier)
	if rr := serve(t, WithReportRoutes, reportHandlers(reports).Routes, req); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
