package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const customerCollection = "customers"

// CustomerRepository stores the customer directory.
type CustomerRepository struct {
	customers *pfirestore.Collection[customerDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{customers: pfirestore.NewCollection[customerDocument](provider, customerCollection)}, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	_, err := r.customers.Create(ctx, customer.ID, fromDomainCustomer(customer))
	return err
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	_, err := r.customers.Update(ctx, customer.ID, []firestore.Update{
		{Path: "name", Value: customer.Name},
		{Path: "phone", Value: customer.Phone},
		{Path: "vehicle", Value: customer.Vehicle},
	})
	return err
}

func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	return r.customers.Delete(ctx, id)
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	snap, err := r.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return snap.Data.toDomain(snap.ID), nil
}

func (r *CustomerRepository) ListAll(ctx context.Context) ([]domain.Customer, error) {
	snaps, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Data.toDomain(snap.ID))
	}
	return out, nil
}
