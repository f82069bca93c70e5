// Package services implements the POS business rules on top of the repository ports.
package services

import (
	"context"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

type (
	Order           = domain.Order
	LineItem        = domain.LineItem
	ServiceOffering = domain.ServiceOffering
	Customer        = domain.Customer
	StaffMember     = domain.StaffMember
	OrderSnapshot   = repositories.OrderSnapshot
)

// SystemService exposes runtime health for /readyz.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogService maintains the service catalog.
type CatalogService interface {
	ListServices(ctx context.Context, filter domain.ServiceFilter) ([]ServiceOffering, error)
	GetService(ctx context.Context, id string) (ServiceOffering, error)
	CreateService(ctx context.Context, cmd UpsertServiceCommand) (ServiceOffering, error)
	UpdateService(ctx context.Context, id string, cmd UpsertServiceCommand) (ServiceOffering, error)
	DeactivateService(ctx context.Context, id string) (ServiceOffering, error)
	DeleteService(ctx context.Context, id string) error
	IssueImageUpload(ctx context.Context, cmd ImageUploadCommand) (pstorage.SignedURL, string, error)
}

// CustomerService maintains the customer directory.
type CustomerService interface {
	CreateCustomer(ctx context.Context, cmd CustomerCommand) (Customer, error)
	UpdateCustomer(ctx context.Context, id string, cmd CustomerCommand) (Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	GetCustomer(ctx context.Context, id string) (Customer, error)
	SearchCustomers(ctx context.Context, query domain.CustomerQuery) (domain.OffsetPage[Customer], error)
	SuggestCustomers(ctx context.Context, query string) ([]Customer, error)
}

// OrderService is the order ledger.
type OrderService interface {
	Create(ctx context.Context, draft OrderDraft) (Order, error)
	MarkPaid(ctx context.Context, id string) (Order, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[Order], error)
	Scan(ctx context.Context, filter domain.OrderFilter) ([]Order, error)
	Latest(ctx context.Context, limit int) ([]Order, error)
	Watch(ctx context.Context, filter domain.OrderFilter) *OrderSubscription
}

// ComposerService manages one draft order per signed-in operator.
type ComposerService interface {
	Current(ctx context.Context) (DraftView, error)
	SetCustomer(ctx context.Context, input DraftCustomer) (DraftView, error)
	ToggleService(ctx context.Context, serviceID string) (DraftView, error)
	AddCustomItem(ctx context.Context, name, price string) (DraftView, bool, error)
	RemoveLineItem(ctx context.Context, itemID string) (DraftView, error)
	Discard(ctx context.Context) error
	Submit(ctx context.Context) (Order, bool, error)
}

// ReportService derives sales figures from the ledger.
type ReportService interface {
	Summary(ctx context.Context, period SummaryPeriod, now time.Time) (SalesSummary, error)
	Trend(ctx context.Context, granularity Granularity, window int, now time.Time) ([]TrendBucket, error)
	Categories(ctx context.Context, window domain.TimeRange) (CategoryTotals, error)
	RecentCustomers(ctx context.Context) ([]CustomerRollup, error)
	Dashboard(ctx context.Context, period DashboardPeriod, now time.Time) (Dashboard, error)
	Overview(ctx context.Context, now time.Time) (Overview, error)
	Sales(ctx context.Context, filter SalesFilter) (domain.OffsetPage[SalesRow], error)
	ExportSales(ctx context.Context, window domain.TimeRange) (SalesExport, error)
	ExportPreviousDay(ctx context.Context, now time.Time) (SalesExport, error)
}

// StaffService manages staff accounts.
type StaffService interface {
	CreateStaff(ctx context.Context, cmd CreateStaffCommand) (StaffMember, error)
	ListStaff(ctx context.Context) ([]StaffMember, error)
	UpdateProfile(ctx context.Context, uid string, cmd UpdateProfileCommand) (StaffMember, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent describes a ledger change.
type OrderEvent struct {
	Type          string
	OrderID       string
	PaymentStatus string
	Total         domain.Amount
	Operator      domain.Operator
	OccurredAt    time.Time
}

// OrderMetrics records ledger counters.
type OrderMetrics interface {
	OrderCreated(ctx context.Context, total domain.Amount)
	OrderPaid(ctx context.Context, total domain.Amount)
	OrderDeleted(ctx context.Context)
}

// ObjectWriter persists generated files such as CSV exports.
type ObjectWriter interface {
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// URLSigner issues V4 signed URLs.
type URLSigner interface {
	UploadURL(ctx context.Context, bucket, object string, req pstorage.UploadRequest) (pstorage.SignedURL, error)
	DownloadURL(ctx context.Context, bucket, object string, req pstorage.DownloadRequest) (pstorage.SignedURL, error)
}

// StaffAccounts creates Firebase users for new staff.
type StaffAccounts interface {
	CreateStaffAccount(ctx context.Context, account auth.NewStaffAccount) (string, error)
}

func noopLogger(context.Context, string, map[string]any) {}
