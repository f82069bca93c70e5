package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

// ErrComposerNoSession is returned when a draft operation runs without an operator.
var ErrComposerNoSession = errors.New("composer: no operator session")

// ComposerServiceDeps bundles collaborators required to construct the composer service.
type ComposerServiceDeps struct {
	Drafts  *DraftStore
	Catalog repositories.ServiceRepository
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type composerService struct {
	drafts  *DraftStore
	catalog repositories.ServiceRepository
	logger  func(context.Context, string, map[string]any)
}

var _ ComposerService = (*composerService)(nil)

// NewComposerService exposes DraftStore drafts keyed by the session operator.
func NewComposerService(deps ComposerServiceDeps) (ComposerService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("composer service: draft store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("composer service: service repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &composerService{drafts: deps.Drafts, catalog: deps.Catalog, logger: logger}, nil
}

func (s *composerService) Current(ctx context.Context) (DraftView, error) {
	var view DraftView
	err := s.with(ctx, func(c *OrderComposer) error {
		view = c.View()
		return nil
	})
	return view, err
}

func (s *composerService) SetCustomer(ctx context.Context, input DraftCustomer) (DraftView, error) {
	var view DraftView
	err := s.with(ctx, func(c *OrderComposer) error {
		c.SetCustomer(DraftCustomer{
			Name:  textutil.Clean(input.Name, maxCustomerNameRunes),
			Phone: textutil.Clean(input.Phone, 32),
			Vehicle: domain.Vehicle{
				Make:  textutil.Clean(input.Vehicle.Make, maxVehicleFieldRunes),
				Model: textutil.Clean(input.Vehicle.Model, maxVehicleFieldRunes),
				Year:  textutil.Clean(input.Vehicle.Year, 8),
				Plate: textutil.Clean(input.Vehicle.Plate, 20),
			},
			Note: textutil.CleanMultiline(input.Note, maxNoteRunes),
		})
		view = c.View()
		return nil
	})
	return view, err
}

func (s *composerService) ToggleService(ctx context.Context, serviceID string) (DraftView, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return DraftView{}, fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	var view DraftView
	err := s.with(ctx, func(c *OrderComposer) error {
		if c.Has(serviceID) {
			c.RemoveLineItem(serviceID)
			view = c.View()
			return nil
		}
		offering, err := s.catalog.FindByID(ctx, serviceID)
		if err != nil {
			return translateCatalogError(err)
		}
		if !offering.Selectable() {
			return fmt.Errorf("%w: %s", ErrServiceInactive, offering.Name)
		}
		c.ToggleService(offering)
		view = c.View()
		return nil
	})
	return view, err
}

func (s *composerService) AddCustomItem(ctx context.Context, name, price string) (DraftView, bool, error) {
	var (
		view  DraftView
		added bool
	)
	err := s.with(ctx, func(c *OrderComposer) error {
		added = c.AddCustomItem(name, price)
		view = c.View()
		return nil
	})
	return view, added, err
}

func (s *composerService) RemoveLineItem(ctx context.Context, itemID string) (DraftView, error) {
	var view DraftView
	err := s.with(ctx, func(c *OrderComposer) error {
		c.RemoveLineItem(strings.TrimSpace(itemID))
		view = c.View()
		return nil
	})
	return view, err
}

func (s *composerService) Discard(ctx context.Context) error {
	return s.with(ctx, func(c *OrderComposer) error {
		c.Reset()
		return nil
	})
}

func (s *composerService) Submit(ctx context.Context) (Order, bool, error) {
	var (
		order     Order
		submitted bool
	)
	err := s.with(ctx, func(c *OrderComposer) error {
		var err error
		order, submitted, err = c.Submit(ctx, c.Customer())
		return err
	})
	if err != nil {
		s.logger(ctx, "draft.submit.failed", map[string]any{"error": err.Error()})
		return Order{}, false, err
	}
	if submitted {
		s.logger(ctx, "draft.submitted", map[string]any{"orderId": order.ID})
	}
	return order, submitted, nil
}

func (s *composerService) with(ctx context.Context, fn func(*OrderComposer) error) error {
	session, ok := SessionFromContext(ctx)
	if !ok || strings.TrimSpace(session.UID) == "" {
		return ErrComposerNoSession
	}
	return s.drafts.With(session.UID, fn)
}
