package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const (
	OrderEventCreated = "order.created"
	OrderEventPaid    = "order.paid"
	OrderEventDeleted = "order.deleted"

	maxCustomerNameRunes = 120
	maxNoteRunes         = 1000
	maxItemNameRunes     = 120
	maxVehicleFieldRunes = 60
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnavailable is a generic store failure. The caller may retry manually.
	ErrOrderUnavailable = errors.New("order: store unavailable")
)

// OrderDraft is the input to a ledger create.
type OrderDraft struct {
	CustomerName  string
	CustomerPhone string
	Vehicle       domain.Vehicle
	Items         []LineItem
	Note          string
	// Operator defaults to the session on ctx.
	Operator domain.Operator
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Metrics     OrderMetrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders  repositories.OrderRepository
	clock   func() time.Time
	newID   func() string
	events  OrderEventPublisher
	metrics OrderMetrics
	logger  func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into the ledger implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
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
	return &orderService{
		orders:  deps.Orders,
		clock:   func() time.Time { return clock().UTC() },
		newID:   newID,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, draft OrderDraft) (Order, error) {
	name := textutil.Clean(draft.CustomerName, maxCustomerNameRunes)
	if name == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if len(draft.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line item is required", ErrOrderInvalidInput)
	}

	items := make([]LineItem, 0, len(draft.Items))
	for i, item := range draft.Items {
		item.Name = textutil.Clean(item.Name, maxItemNameRunes)
		if item.Name == "" {
			return Order{}, fmt.Errorf("%w: item %d name is required", ErrOrderInvalidInput, i)
		}
		if item.Price < 0 {
			return Order{}, fmt.Errorf("%w: item %d price must be non-negative", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(item.ID) == "" {
			item.ID = s.newID()
		}
		items = append(items, item)
	}

	operator := draft.Operator
	if strings.TrimSpace(operator.Name) == "" && strings.TrimSpace(operator.Role) == "" {
		operator = operatorFrom(ctx)
	}

	subtotal, total := domain.ComputeTotals(items, 0)
	order := Order{
		ID:            s.newID(),
		CustomerName:  name,
		CustomerPhone: textutil.Clean(draft.CustomerPhone, 32),
		Vehicle: domain.Vehicle{
			Make:  textutil.Clean(draft.Vehicle.Make, maxVehicleFieldRunes),
			Model: textutil.Clean(draft.Vehicle.Model, maxVehicleFieldRunes),
			Year:  textutil.Clean(draft.Vehicle.Year, 8),
			Plate: textutil.Clean(draft.Vehicle.Plate, 20),
		},
		Items:         items,
		Subtotal:      subtotal,
		Total:         total,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentUnpaid,
		CreatedAt:     s.clock(),
		Operator:      operator,
		Note:          textutil.CleanMultiline(draft.Note, maxNoteRunes),
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.logger(ctx, "order.create.failed", map[string]any{"error": err.Error()})
		return Order{}, s.translate(err)
	}
	s.logger(ctx, OrderEventCreated, map[string]any{"orderId": order.ID, "total": order.Total.Decimal(), "items": len(order.Items)})
	if s.metrics != nil {
		s.metrics.OrderCreated(ctx, order.Total)
	}
	s.publish(ctx, OrderEventCreated, order)
	return order, nil
}

func (s *orderService) MarkPaid(ctx context.Context, id string) (Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	paidAt := s.clock()
	order, changed, err := s.orders.MarkPaid(ctx, id, func(current Order) Order {
		current.PaymentStatus = domain.PaymentPaid
		current.PaidAt = &paidAt
		return current
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	if !changed {
		return order, nil
	}
	s.logger(ctx, OrderEventPaid, map[string]any{"orderId": order.ID})
	if s.metrics != nil {
		s.metrics.OrderPaid(ctx, order.Total)
	}
	s.publish(ctx, OrderEventPaid, order)
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return s.translate(err)
	}
	s.logger(ctx, OrderEventDeleted, map[string]any{"orderId": id})
	if s.metrics != nil {
		s.metrics.OrderDeleted(ctx)
	}
	s.publish(ctx, OrderEventDeleted, Order{ID: id})
	return nil
}

func (s *orderService) Get(ctx context.Context, id string) (Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[Order], error) {
	if err := validateOrderFilter(filter); err != nil {
		return domain.CursorPage[Order]{}, err
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translate(err)
	}
	return page, nil
}

func (s *orderService) Scan(ctx context.Context, filter domain.OrderFilter) ([]Order, error) {
	if err := validateOrderFilter(filter); err != nil {
		return nil, err
	}
	orders, err := s.orders.Scan(ctx, filter)
	if err != nil {
		return nil, s.translate(err)
	}
	return orders, nil
}

func (s *orderService) Latest(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrOrderInvalidInput)
	}
	orders, err := s.orders.Latest(ctx, limit)
	if err != nil {
		return nil, s.translate(err)
	}
	return orders, nil
}

func (s *orderService) Watch(ctx context.Context, filter domain.OrderFilter) *OrderSubscription {
	return newOrderSubscription(ctx, func(streamCtx context.Context) iter.Seq2[OrderSnapshot, error] {
		return s.orders.Watch(streamCtx, filter)
	})
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total,
		Operator:      order.Operator,
		OccurredAt:    s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{"type": eventType, "orderId": order.ID, "error": err.Error()})
	}
}

func (s *orderService) translate(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func validateOrderFilter(filter domain.OrderFilter) error {
	if filter.PaymentStatus != "" {
		if _, ok := domain.ParsePaymentStatus(string(filter.PaymentStatus)); !ok {
			return fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, filter.PaymentStatus)
		}
	}
	r := filter.Created
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("%w: created range ends before it starts", ErrOrderInvalidInput)
	}
	return nil
}
