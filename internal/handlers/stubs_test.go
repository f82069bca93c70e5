package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubCatalog struct {
	listFn       func(ctx context.Context, filter domain.ServiceFilter) ([]services.ServiceOffering, error)
	getFn        func(ctx context.Context, id string) (services.ServiceOffering, error)
	createFn     func(ctx context.Context, cmd services.UpsertServiceCommand) (services.ServiceOffering, error)
	updateFn     func(ctx context.Context, id string, cmd services.UpsertServiceCommand) (services.ServiceOffering, error)
	deactivateFn func(ctx context.Context, id string) (services.ServiceOffering, error)
	deleteFn     func(ctx context.Context, id string) error
	imageFn      func(ctx context.Context, cmd services.ImageUploadCommand) (pstorage.SignedURL, string, error)
}

func (s *stubCatalog) ListServices(ctx context.Context, filter domain.ServiceFilter) ([]services.ServiceOffering, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubCatalog) GetService(ctx context.Context, id string) (services.ServiceOffering, error) {
	if s.getFn == nil {
		return services.ServiceOffering{}, services.ErrCatalogNotFound
	}
	return s.getFn(ctx, id)
}

func (s *stubCatalog) CreateService(ctx context.Context, cmd services.UpsertServiceCommand) (services.ServiceOffering, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubCatalog) UpdateService(ctx context.Context, id string, cmd services.UpsertServiceCommand) (services.ServiceOffering, error) {
	return s.updateFn(ctx, id, cmd)
}

func (s *stubCatalog) DeactivateService(ctx context.Context, id string) (services.ServiceOffering, error) {
	return s.deactivateFn(ctx, id)
}

func (s *stubCatalog) DeleteService(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubCatalog) IssueImageUpload(ctx context.Context, cmd services.ImageUploadCommand) (pstorage.SignedURL, string, error) {
	return s.imageFn(ctx, cmd)
}

type stubCustomers struct {
	createFn  func(ctx context.Context, cmd services.CustomerCommand) (services.Customer, error)
	updateFn  func(ctx context.Context, id string, cmd services.CustomerCommand) (services.Customer, error)
	deleteFn  func(ctx context.Context, id string) error
	getFn     func(ctx context.Context, id string) (services.Customer, error)
	searchFn  func(ctx context.Context, query domain.CustomerQuery) (domain.OffsetPage[services.Customer], error)
	suggestFn func(ctx context.Context, query string) ([]services.Customer, error)
}

func (s *stubCustomers) CreateCustomer(ctx context.Context, cmd services.CustomerCommand) (services.Customer, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubCustomers) UpdateCustomer(ctx context.Context, id string, cmd services.CustomerCommand) (services.Customer, error) {
	return s.updateFn(ctx, id, cmd)
}

func (s *stubCustomers) DeleteCustomer(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubCustomers) GetCustomer(ctx context.Context, id string) (services.Customer, error) {
	return s.getFn(ctx, id)
}

func (s *stubCustomers) SearchCustomers(ctx context.Context, query domain.CustomerQuery) (domain.OffsetPage[services.Customer], error) {
	return s.searchFn(ctx, query)
}

func (s *stubCustomers) SuggestCustomers(ctx context.Context, query string) ([]services.Customer, error) {
	if s.suggestFn == nil {
		return nil, nil
	}
	return s.suggestFn(ctx, query)
}

type stubOrders struct {
	createFn   func(ctx context.Context, draft services.OrderDraft) (services.Order, error)
	markPaidFn func(ctx context.Context, id string) (services.Order, error)
	deleteFn   func(ctx context.Context, id string) error
	getFn      func(ctx context.Context, id string) (services.Order, error)
	listFn     func(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[services.Order], error)
	watchFn    func(ctx context.Context, filter domain.OrderFilter) *services.OrderSubscription
}

func (s *stubOrders) Create(ctx context.Context, draft services.OrderDraft) (services.Order, error) {
	return s.createFn(ctx, draft)
}

func (s *stubOrders) MarkPaid(ctx context.Context, id string) (services.Order, error) {
	return s.markPaidFn(ctx, id)
}

func (s *stubOrders) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubOrders) Get(ctx context.Context, id string) (services.Order, error) {
	return s.getFn(ctx, id)
}

func (s *stubOrders) List(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[services.Order], error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrders) Scan(context.Context, domain.OrderFilter) ([]services.Order, error) {
	return nil, nil
}

func (s *stubOrders) Latest(context.Context, int) ([]services.Order, error) {
	return nil, nil
}

func (s *stubOrders) Watch(ctx context.Context, filter domain.OrderFilter) *services.OrderSubscription {
	return s.watchFn(ctx, filter)
}

type stubReports struct {
	summaryFn   func(ctx context.Context, period services.SummaryPeriod, now time.Time) (services.SalesSummary, error)
	trendFn     func(ctx context.Context, g services.Granularity, window int, now time.Time) ([]services.TrendBucket, error)
	categoryFn  func(ctx context.Context, window domain.TimeRange) (services.CategoryTotals, error)
	dashboardFn func(ctx context.Context, period services.DashboardPeriod, now time.Time) (services.Dashboard, error)
	salesFn     func(ctx context.Context, filter services.SalesFilter) (domain.OffsetPage[services.SalesRow], error)
	exportFn    func(ctx context.Context, window domain.TimeRange) (services.SalesExport, error)
	previousFn  func(ctx context.Context, now time.Time) (services.SalesExport, error)
}

func (s *stubReports) Summary(ctx context.Context, period services.SummaryPeriod, now time.Time) (services.SalesSummary, error) {
	return s.summaryFn(ctx, period, now)
}

func (s *stubReports) Trend(ctx context.Context, g services.Granularity, window int, now time.Time) ([]services.TrendBucket, error) {
	return s.trendFn(ctx, g, window, now)
}

func (s *stubReports) Categories(ctx context.Context, window domain.TimeRange) (services.CategoryTotals, error) {
	return s.categoryFn(ctx, window)
}

func (s *stubReports) RecentCustomers(context.Context) ([]services.CustomerRollup, error) {
	return nil, nil
}

func (s *stubReports) Dashboard(ctx context.Context, period services.DashboardPeriod, now time.Time) (services.Dashboard, error) {
	return s.dashboardFn(ctx, period, now)
}

func (s *stubReports) Overview(context.Context, time.Time) (services.Overview, error) {
	return services.Overview{}, nil
}

func (s *stubReports) Sales(ctx context.Context, filter services.SalesFilter) (domain.OffsetPage[services.SalesRow], error) {
	return s.salesFn(ctx, filter)
}

func (s *stubReports) ExportSales(ctx context.Context, window domain.TimeRange) (services.SalesExport, error) {
	return s.exportFn(ctx, window)
}

func (s *stubReports) ExportPreviousDay(ctx context.Context, now time.Time) (services.SalesExport, error) {
	return s.previousFn(ctx, now)
}

type stubStaff struct {
	createFn  func(ctx context.Context, cmd services.CreateStaffCommand) (services.StaffMember, error)
	listFn    func(ctx context.Context) ([]services.StaffMember, error)
	profileFn func(ctx context.Context, uid string, cmd services.UpdateProfileCommand) (services.StaffMember, error)
}

func (s *stubStaff) CreateStaff(ctx context.Context, cmd services.CreateStaffCommand) (services.StaffMember, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubStaff) ListStaff(ctx context.Context) ([]services.StaffMember, error) {
	return s.listFn(ctx)
}

func (s *stubStaff) UpdateProfile(ctx context.Context, uid string, cmd services.UpdateProfileCommand) (services.StaffMember, error) {
	return s.profileFn(ctx, uid, cmd)
}

var (
	_ services.SystemService   = (*stubSystemService)(nil)
	_ services.CatalogService  = (*stubCatalog)(nil)
	_ services.CustomerService = (*stubCustomers)(nil)
	_ services.OrderService    = (*stubOrders)(nil)
	_ services.ReportService   = (*stubReports)(nil)
	_ services.StaffService    = (*stubStaff)(nil)
)

// signedIn attaches an identity and its session the way the staff middlewares would.
func signedIn(req *http.Request, uid string, role auth.Role) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@sauber.test", Name: "Kofi", Role: role}
	ctx := auth.WithIdentity(req.Context(), identity)
	ctx = services.WithSession(ctx, services.Session{UID: uid, Name: identity.DisplayName(), Role: string(role)})
	return req.WithContext(ctx)
}

func serve(t *testing.T, register func(r RouteRegistrar) Option, routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(register(routes))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeResponse[map[string]any](t, rr)
	code, _ := body["error"].(string)
	return code
}

func sessionFrom(r *http.Request) (string, bool) {
	session, ok := services.SessionFromContext(r.Context())
	if !ok {
		return "", false
	}
	return session.UID + "|" + session.Name + "|" + session.Role, true
}
