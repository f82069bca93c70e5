package services

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

type fakeRepoError struct {
	notFound    bool
	unavailable bool
}

func (e fakeRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return false }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

var errNotFound = fakeRepoError{notFound: true}

// memoryOrders is an in-memory ledger used where the behaviour of the store matters.
type memoryOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	seq    []string

	insertErr error
	watchFn   func(ctx context.Context, filter domain.OrderFilter) iter.Seq2[repositories.OrderSnapshot, error]
}

func newMemoryOrders(orders ...domain.Order) *memoryOrders {
	m := &memoryOrders{orders: map[string]domain.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
		m.seq = append(m.seq, o.ID)
	}
	return m
}

func (m *memoryOrders) Insert(_ context.Context, order domain.Order) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	m.seq = append(m.seq, order.ID)
	return nil
}

func (m *memoryOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return domain.Order{}, errNotFound
	}
	return order, nil
}

func (m *memoryOrders) MarkPaid(_ context.Context, id string, paid func(domain.Order) domain.Order) (domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false, errNotFound
	}
	if order.IsPaid() {
		return order, false, nil
	}
	order = paid(order)
	m.orders[id] = order
	return order, true, nil
}

func (m *memoryOrders) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return errNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryOrders) matching(filter domain.OrderFilter) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.seq))
	for i := len(m.seq) - 1; i >= 0; i-- {
		order, ok := m.orders[m.seq[i]]
		if !ok {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if !filter.Created.Contains(order.CreatedAt) {
			continue
		}
		out = append(out, order)
	}
	return out
}

func (m *memoryOrders) List(_ context.Context, filter domain.OrderFilter) (domain.CursorPage[domain.Order], error) {
	return domain.CursorPage[domain.Order]{Items: m.matching(filter)}, nil
}

func (m *memoryOrders) Scan(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	return m.matching(filter), nil
}

func (m *memoryOrders) Latest(_ context.Context, limit int) ([]domain.Order, error) {
	all := m.matching(domain.OrderFilter{})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memoryOrders) ReferencesService(_ context.Context, serviceID string) (bool, error) {
	for _, order := range m.matching(domain.OrderFilter{}) {
		for _, id := range order.ServiceIDs() {
			if id == serviceID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memoryOrders) Watch(ctx context.Context, filter domain.OrderFilter) iter.Seq2[repositories.OrderSnapshot, error] {
	if m.watchFn != nil {
		return m.watchFn(ctx, filter)
	}
	return func(yield func(repositories.OrderSnapshot, error) bool) {
		yield(repositories.OrderSnapshot{Orders: m.matching(filter)}, nil)
	}
}

type stubServiceRepo struct {
	mu       sync.Mutex
	services map[string]domain.ServiceOffering
	listErr  error
}

func newStubServiceRepo(offerings ...domain.ServiceOffering) *stubServiceRepo {
	r := &stubServiceRepo{services: map[string]domain.ServiceOffering{}}
	for _, o := range offerings {
		r.services[o.ID] = o
	}
	return r
}

func (r *stubServiceRepo) Insert(_ context.Context, offering domain.ServiceOffering) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[offering.ID] = offering
	return nil
}

func (r *stubServiceRepo) Update(_ context.Context, offering domain.ServiceOffering) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[offering.ID]; !ok {
		return errNotFound
	}
	r.services[offering.ID] = offering
	return nil
}

func (r *stubServiceRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; !ok {
		return errNotFound
	}
	delete(r.services, id)
	return nil
}

func (r *stubServiceRepo) FindByID(_ context.Context, id string) (domain.ServiceOffering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	offering, ok := r.services[id]
	if !ok {
		return domain.ServiceOffering{}, errNotFound
	}
	return offering, nil
}

func (r *stubServiceRepo) List(_ context.Context, _ domain.ServiceFilter) ([]domain.ServiceOffering, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ServiceOffering, 0, len(r.services))
	for _, o := range r.services {
		out = append(out, o)
	}
	return out, nil
}

type stubCustomerRepo struct {
	insertFn func(context.Context, domain.Customer) error
	listFn   func(context.Context) ([]domain.Customer, error)
	findFn   func(context.Context, string) (domain.Customer, error)
	updateFn func(context.Context, domain.Customer) error
	deleteFn func(context.Context, string) error
}

func (s *stubCustomerRepo) Insert(ctx context.Context, c domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, c)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, c domain.Customer) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, c)
	}
	return nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Customer{}, errNotFound
}

func (s *stubCustomerRepo) ListAll(ctx context.Context) ([]domain.Customer, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type ledgerFunc func(context.Context, OrderDraft) (Order, error)

func (f ledgerFunc) Create(ctx context.Context, draft OrderDraft) (Order, error) {
	return f(ctx, draft)
}

var errStoreDown = errors.New("store down")

func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + string(rune('0'+n%10)) + string(rune('a'+n/10%26))
	}
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryObjects) Write(_ context.Context, bucket, object, contentType string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[bucket+"/"+object] = append([]byte(nil), data...)
	m.types[bucket+"/"+object] = contentType
	return nil
}

type stubSigner struct {
	uploadFn   func(ctx context.Context, bucket, object string, req pstorage.UploadRequest) (pstorage.SignedURL, error)
	downloadFn func(ctx context.Context, bucket, object string, req pstorage.DownloadRequest) (pstorage.SignedURL, error)
}

func (s stubSigner) UploadURL(ctx context.Context, bucket, object string, req pstorage.UploadRequest) (pstorage.SignedURL, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, bucket, object, req)
	}
	return pstorage.SignedURL{}, errors.New("not implemented")
}

func (s stubSigner) DownloadURL(ctx context.Context, bucket, object string, req pstorage.DownloadRequest) (pstorage.SignedURL, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, bucket, object, req)
	}
	return pstorage.SignedURL{}, errors.New("not implemented")
}
