package firestore

import (
	"context"
	"errors"
	"iter"

	"cloud.google.com/go/firestore"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository is the Firestore order ledger.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
	}, nil
}

// Insert creates the order document in a single write.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.orders.Create(ctx, order.ID, fromDomainOrder(order))
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	snap, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return snap.Data.toDomain(snap.ID), nil
}

// MarkPaid reads and updates the order in one transaction so a concurrent delete cannot be
// undone by the payment write.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paid func(domain.Order) domain.Order) (domain.Order, bool, error) {
	ref, err := r.orders.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	var (
		result  domain.Order
		changed bool
	)
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.markPaid", err)
		}
		decoded, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		current := decoded.Data.toDomain(decoded.ID)
		if current.IsPaid() {
			result, changed = current, false
			return nil
		}
		updated := paid(current)
		doc := fromDomainOrder(updated)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: doc.PaymentStatus},
			{Path: "paidAt", Value: doc.PaidAt},
		}); err != nil {
			return err
		}
		result, changed = updated, true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return result, changed, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.orders.Delete(ctx, id)
}

// filtered applies payment and creation-time predicates ordered newest first.
func filtered(q firestore.Query, filter domain.OrderFilter) firestore.Query {
	if filter.PaymentStatus != "" {
		q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
	}
	if !filter.Created.From.IsZero() {
		q = q.Where("createdAt", ">=", filter.Created.From.UTC())
	}
	if !filter.Created.To.IsZero() {
		q = q.Where("createdAt", "<=", filter.Created.To.UTC())
	}
	return q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
}

// List returns one page. The next token encodes the last order's createdAt and id.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.CursorPage[domain.Order], error) {
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	ref, err := r.orders.Ref(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	snaps, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = filtered(q, filter)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.CreatedAt.UTC(), ref.Doc(cursor.ID))
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(snaps), size))}
	for i, snap := range snaps {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, snap.Data.toDomain(snap.ID))
	}
	return page, nil
}

// Scan returns every order matching filter, newest first.
func (r *OrderRepository) Scan(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	snaps, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return filtered(q, filter)
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(snaps), nil
}

func (r *OrderRepository) Latest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		return nil, nil
	}
	snaps, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(snaps), nil
}

func (r *OrderRepository) ReferencesService(ctx context.Context, serviceID string) (bool, error) {
	snaps, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("serviceIds", "array-contains", serviceID).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(snaps) > 0, nil
}

// Watch yields a full snapshot each time the result set changes. The listener is opened on
// the first pull and stopped when the consumer stops ranging or ctx ends.
func (r *OrderRepository) Watch(ctx context.Context, filter domain.OrderFilter) iter.Seq2[repositories.OrderSnapshot, error] {
	return func(yield func(repositories.OrderSnapshot, error) bool) {
		ref, err := r.orders.Ref(ctx)
		if err != nil {
			yield(repositories.OrderSnapshot{}, err)
			return
		}
		q := filtered(ref.Query, filter)
		if filter.Pagination.PageSize > 0 {
			q = q.Limit(filter.Pagination.PageSize)
		}
		snapshots := q.Snapshots(ctx)
		defer snapshots.Stop()

		for {
			qs, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(repositories.OrderSnapshot{}, pfirestore.WrapError("orders.watch", err))
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				yield(repositories.OrderSnapshot{}, pfirestore.WrapError("orders.watch", err))
				return
			}
			out := repositories.OrderSnapshot{Orders: make([]domain.Order, 0, len(docs))}
			for _, doc := range docs {
				decoded, err := r.orders.Decode(doc)
				if err != nil {
					yield(repositories.OrderSnapshot{}, err)
					return
				}
				out.Orders = append(out.Orders, decoded.Data.toDomain(decoded.ID))
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

func decodeOrders(snaps []pfirestore.Snapshot[orderDocument]) []domain.Order {
	out := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Data.toDomain(snap.ID))
	}
	return out
}
