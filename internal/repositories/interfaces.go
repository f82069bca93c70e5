// Package repositories declares the persistence ports used by the services.
package repositories

import (
	"context"
	"iter"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ServiceRepository persists catalog offerings.
type ServiceRepository interface {
	Insert(ctx context.Context, offering domain.ServiceOffering) error
	Update(ctx context.Context, offering domain.ServiceOffering) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (domain.ServiceOffering, error)
	List(ctx context.Context, filter domain.ServiceFilter) ([]domain.ServiceOffering, error)
}

// CustomerRepository persists the customer directory.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (domain.Customer, error)
	// ListAll returns the directory ordered by name.
	ListAll(ctx context.Context) ([]domain.Customer, error)
}

// OrderSnapshot is one full view of the orders matching a watch filter.
type OrderSnapshot struct {
	Orders []domain.Order
}

// OrderRepository is the order ledger store.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, id string) (domain.Order, error)
	// MarkPaid sets the payment status inside a transaction. It returns the stored order and
	// whether it changed; a missing order is a not-found RepositoryError.
	MarkPaid(ctx context.Context, id string, paid func(domain.Order) domain.Order) (domain.Order, bool, error)
	// Delete removes an existing order; a missing order is a not-found RepositoryError.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[domain.Order], error)
	Scan(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// Latest returns the limit most recent orders.
	Latest(ctx context.Context, limit int) ([]domain.Order, error)
	ReferencesService(ctx context.Context, serviceID string) (bool, error)
	// Watch streams full snapshots until ctx is cancelled or the consumer stops.
	Watch(ctx context.Context, filter domain.OrderFilter) iter.Seq2[OrderSnapshot, error]
}

// StaffRepository persists staff profiles keyed by Firebase UID.
type StaffRepository interface {
	Upsert(ctx context.Context, member domain.StaffMember) error
	FindByUID(ctx context.Context, uid string) (domain.StaffMember, error)
	// UpdateProfile rewrites the name fields of an existing member only.
	UpdateProfile(ctx context.Context, member domain.StaffMember) error
	List(ctx context.Context) ([]domain.StaffMember, error)
}

// HealthRepository reports the state of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
