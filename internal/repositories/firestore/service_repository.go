// Package firestore implements the repository ports on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const serviceCollection = "services"

// ServiceRepository stores catalog offerings.
type ServiceRepository struct {
	services *pfirestore.Collection[serviceDocument]
}

var _ repositories.ServiceRepository = (*ServiceRepository)(nil)

// NewServiceRepository constructs a Firestore-backed catalog repository.
func NewServiceRepository(provider *pfirestore.Provider) (*ServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("service repository requires firestore provider")
	}
	return &ServiceRepository{services: pfirestore.NewCollection[serviceDocument](provider, serviceCollection)}, nil
}

func (r *ServiceRepository) Insert(ctx context.Context, offering domain.ServiceOffering) error {
	_, err := r.services.Create(ctx, offering.ID, fromDomainService(offering))
	return err
}

// Update overwrites an existing offering; a missing one is not-found.
func (r *ServiceRepository) Update(ctx context.Context, offering domain.ServiceOffering) error {
	doc, err := r.services.Doc(ctx, offering.ID)
	if err != nil {
		return err
	}
	if _, err := doc.Update(ctx, serviceUpdates(fromDomainService(offering))); err != nil {
		return pfirestore.WrapError("services.update", err)
	}
	return nil
}

func serviceUpdates(d serviceDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "name", Value: d.Name},
		{Path: "description", Value: d.Description},
		{Path: "category", Value: d.Category},
		{Path: "price", Value: d.Price},
		{Path: "vehicleType", Value: d.VehicleType},
		{Path: "status", Value: d.Status},
		{Path: "supplier", Value: d.Supplier},
		{Path: "discountable", Value: d.Discountable},
		{Path: "imageUrl", Value: d.ImageURL},
		{Path: "tier", Value: d.Tier},
		{Path: "updatedAt", Value: d.UpdatedAt},
	}
}

func (r *ServiceRepository) Delete(ctx context.Context, id string) error {
	return r.services.Delete(ctx, id)
}

func (r *ServiceRepository) FindByID(ctx context.Context, id string) (domain.ServiceOffering, error) {
	snap, err := r.services.Get(ctx, id)
	if err != nil {
		return domain.ServiceOffering{}, err
	}
	return snap.Data.toDomain(snap.ID), nil
}

// List applies equality filters in Firestore and sorts by name in memory, which keeps the
// catalog free of composite indexes.
func (r *ServiceRepository) List(ctx context.Context, filter domain.ServiceFilter) ([]domain.ServiceOffering, error) {
	snaps, err := r.services.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.Category != "" {
			q = q.Where("category", "==", string(filter.Category))
		}
		if filter.VehicleType != "" {
			q = q.Where("vehicleType", "==", string(filter.VehicleType))
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServiceOffering, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Data.toDomain(snap.ID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
