package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const staffCollection = "users"

// StaffRepository stores staff profiles under users/{uid}.
type StaffRepository struct {
	users *pfirestore.Collection[staffDocument]
}

var _ repositories.StaffRepository = (*StaffRepository)(nil)

// NewStaffRepository constructs a Firestore-backed staff repository.
func NewStaffRepository(provider *pfirestore.Provider) (*StaffRepository, error) {
	if provider == nil {
		return nil, errors.New("staff repository requires firestore provider")
	}
	return &StaffRepository{users: pfirestore.NewCollection[staffDocument](provider, staffCollection)}, nil
}

func (r *StaffRepository) Upsert(ctx context.Context, member domain.StaffMember) error {
	_, err := r.users.Set(ctx, member.UID, fromDomainStaff(member))
	return err
}

func (r *StaffRepository) FindByUID(ctx context.Context, uid string) (domain.StaffMember, error) {
	snap, err := r.users.Get(ctx, uid)
	if err != nil {
		return domain.StaffMember{}, err
	}
	return snap.Data.toDomain(snap.ID), nil
}

func (r *StaffRepository) UpdateProfile(ctx context.Context, member domain.StaffMember) error {
	_, err := r.users.Update(ctx, member.UID, []firestore.Update{
		{Path: "name", Value: member.Name},
		{Path: "firstName", Value: member.FirstName},
		{Path: "lastName", Value: member.LastName},
	})
	return err
}

func (r *StaffRepository) List(ctx context.Context) ([]domain.StaffMember, error) {
	snaps, err := r.users.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.StaffMember, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Data.toDomain(snap.ID))
	}
	return out, nil
}
