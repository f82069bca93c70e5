package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

var (
	// ErrCustomerInvalidInput signals a missing or malformed customer field.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer does not exist.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerUnavailable wraps store failures.
	ErrCustomerUnavailable = errors.New("customer: store unavailable")
)

// CustomerCommand carries the directory fields. All three are required.
type CustomerCommand struct {
	Name    string
	Phone   string
	Vehicle string
}

// CustomerServiceDeps bundles collaborators required to construct the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ CustomerService = (*customerService)(nil)

// NewCustomerService constructs the customer directory service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
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
	return &customerService{
		customers: deps.Customers,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		logger:    logger,
	}, nil
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd CustomerCommand) (Customer, error) {
	customer, err := buildCustomer(cmd)
	if err != nil {
		return Customer{}, err
	}
	customer.ID = s.newID()
	customer.CreatedAt = s.clock()
	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, translateCustomerError(err)
	}
	s.logger(ctx, "customer.created", map[string]any{"customerId": customer.ID})
	return customer, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, id string, cmd CustomerCommand) (Customer, error) {
	current, err := s.GetCustomer(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	customer, err := buildCustomer(cmd)
	if err != nil {
		return Customer{}, err
	}
	customer.ID = current.ID
	customer.CreatedAt = current.CreatedAt
	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, translateCustomerError(err)
	}
	return customer, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	if err := s.customers.Delete(ctx, id); err != nil {
		return translateCustomerError(err)
	}
	s.logger(ctx, "customer.deleted", map[string]any{"customerId": id})
	return nil
}

func (s *customerService) GetCustomer(ctx context.Context, id string) (Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return Customer{}, translateCustomerError(err)
	}
	return customer, nil
}

// SearchCustomers matches the search text against name, phone and vehicle, applies the
// inclusive created range and returns one numbered page.
func (s *customerService) SearchCustomers(ctx context.Context, query domain.CustomerQuery) (domain.OffsetPage[Customer], error) {
	r := query.Created
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return domain.OffsetPage[Customer]{}, fmt.Errorf("%w: created range ends before it starts", ErrCustomerInvalidInput)
	}
	all, err := s.customers.ListAll(ctx)
	if err != nil {
		return domain.OffsetPage[Customer]{}, translateCustomerError(err)
	}

	needle := strings.TrimSpace(query.Search)
	matched := make([]Customer, 0, len(all))
	for _, c := range all {
		if !r.Contains(c.CreatedAt) {
			continue
		}
		if needle != "" && !textutil.ContainsFold(c.Name, needle) && !textutil.ContainsFold(c.Phone, needle) && !textutil.ContainsFold(c.Vehicle, needle) {
			continue
		}
		matched = append(matched, c)
	}

	page := pagination.Page{Number: query.Page, Size: query.Size}
	if page.Number <= 0 {
		page.Number = 1
	}
	if page.Size <= 0 {
		page.Size = pagination.DefaultPageSize
	}
	start, end := page.Window(len(matched))
	return domain.OffsetPage[Customer]{
		Items:    matched[start:end],
		Page:     page.Number,
		PageSize: page.Size,
		Total:    len(matched),
	}, nil
}

func (s *customerService) SuggestCustomers(ctx context.Context, query string) ([]Customer, error) {
	if strings.TrimSpace(query) == "" {
		return []Customer{}, nil
	}
	all, err := s.customers.ListAll(ctx)
	if err != nil {
		return nil, translateCustomerError(err)
	}
	return SuggestCustomers(all, query), nil
}

func buildCustomer(cmd CustomerCommand) (Customer, error) {
	customer := Customer{
		Name:    textutil.Clean(cmd.Name, maxCustomerNameRunes),
		Phone:   textutil.Clean(cmd.Phone, 32),
		Vehicle: textutil.Clean(cmd.Vehicle, maxVehicleFieldRunes*2),
	}
	var missing []string
	if customer.Name == "" {
		missing = append(missing, "name")
	}
	if customer.Phone == "" {
		missing = append(missing, "phone")
	}
	if customer.Vehicle == "" {
		missing = append(missing, "vehicle")
	}
	if len(missing) > 0 {
		return Customer{}, fmt.Errorf("%w: %s required", ErrCustomerInvalidInput, strings.Join(missing, ", "))
	}
	return customer, nil
}

func translateCustomerError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCustomerUnavailable, err)
}
