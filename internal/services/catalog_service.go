package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const (
	maxImageBytes          = int64(5 * 1024 * 1024)
	maxServiceNameRunes    = 120
	maxDescriptionRunes    = 1000
	maxSupplierRunes       = 120
	imageUploadExpiry      = 15 * time.Minute
	catalogEventCreated    = "catalog.service.created"
	catalogEventUpdated    = "catalog.service.updated"
	catalogEventDeleted    = "catalog.service.deleted"
	catalogEventImageIssue = "catalog.image.upload_issued"
)

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/webp"}

var (
	// ErrCatalogInvalidInput signals invalid offering data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the offering does not exist.
	ErrCatalogNotFound = errors.New("catalog: service not found")
	// ErrServiceInUse blocks deleting an offering that orders still reference.
	ErrServiceInUse = errors.New("catalog: service is referenced by orders")
	// ErrServiceInactive is returned when an inactive offering is added to a draft.
	ErrServiceInactive = errors.New("catalog: service is inactive")
	// ErrCatalogUnavailable wraps store failures.
	ErrCatalogUnavailable = errors.New("catalog: store unavailable")
)

// UpsertServiceCommand carries offering fields from the maintenance screens. Enum fields
// are parsed case-insensitively; empty optional fields take their defaults.
type UpsertServiceCommand struct {
	Name         string
	Description  string
	Category     string
	Price        domain.Amount
	VehicleType  string
	Status       string
	Supplier     string
	Discountable bool
	ImageURL     string
	Tier         string
}

// ImageUploadCommand requests a signed PUT URL for an offering image.
type ImageUploadCommand struct {
	ServiceID   string
	FileName    string
	ContentType string
	Size        int64
}

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Services     repositories.ServiceRepository
	Orders       repositories.OrderRepository
	URLs         URLSigner
	ImagesBucket string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	services repositories.ServiceRepository
	orders   repositories.OrderRepository
	urls     URLSigner
	bucket   string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog maintenance service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Services == nil {
		return nil, errors.New("catalog service: service repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("catalog service: order repository is required")
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
	return &catalogService{
		services: deps.Services,
		orders:   deps.Orders,
		urls:     deps.URLs,
		bucket:   strings.TrimSpace(deps.ImagesBucket),
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListServices(ctx context.Context, filter domain.ServiceFilter) ([]ServiceOffering, error) {
	offerings, err := s.services.List(ctx, filter)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return offerings, nil
}

func (s *catalogService) GetService(ctx context.Context, id string) (ServiceOffering, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ServiceOffering{}, fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	offering, err := s.services.FindByID(ctx, id)
	if err != nil {
		return ServiceOffering{}, translateCatalogError(err)
	}
	return offering, nil
}

func (s *catalogService) CreateService(ctx context.Context, cmd UpsertServiceCommand) (ServiceOffering, error) {
	offering, err := buildOffering(cmd)
	if err != nil {
		return ServiceOffering{}, err
	}
	now := s.clock()
	offering.ID = s.newID()
	offering.CreatedAt = now
	offering.UpdatedAt = now
	if err := s.services.Insert(ctx, offering); err != nil {
		return ServiceOffering{}, translateCatalogError(err)
	}
	s.logger(ctx, catalogEventCreated, map[string]any{"serviceId": offering.ID, "name": offering.Name})
	return offering, nil
}

func (s *catalogService) UpdateService(ctx context.Context, id string, cmd UpsertServiceCommand) (ServiceOffering, error) {
	current, err := s.GetService(ctx, id)
	if err != nil {
		return ServiceOffering{}, err
	}
	offering, err := buildOffering(cmd)
	if err != nil {
		return ServiceOffering{}, err
	}
	offering.ID = current.ID
	offering.CreatedAt = current.CreatedAt
	offering.UpdatedAt = s.clock()
	if err := s.services.Update(ctx, offering); err != nil {
		return ServiceOffering{}, translateCatalogError(err)
	}
	s.logger(ctx, catalogEventUpdated, map[string]any{"serviceId": offering.ID})
	return offering, nil
}

func (s *catalogService) DeactivateService(ctx context.Context, id string) (ServiceOffering, error) {
	offering, err := s.GetService(ctx, id)
	if err != nil {
		return ServiceOffering{}, err
	}
	if offering.Status == domain.ServiceInactive {
		return offering, nil
	}
	offering.Status = domain.ServiceInactive
	offering.UpdatedAt = s.clock()
	if err := s.services.Update(ctx, offering); err != nil {
		return ServiceOffering{}, translateCatalogError(err)
	}
	s.logger(ctx, catalogEventUpdated, map[string]any{"serviceId": offering.ID, "status": string(offering.Status)})
	return offering, nil
}

func (s *catalogService) DeleteService(ctx context.Context, id string) error {
	offering, err := s.GetService(ctx, id)
	if err != nil {
		return err
	}
	referenced, err := s.orders.ReferencesService(ctx, offering.ID)
	if err != nil {
		return translateCatalogError(err)
	}
	if referenced {
		return fmt.Errorf("%w: deactivate %q instead", ErrServiceInUse, offering.Name)
	}
	if err := s.services.Delete(ctx, offering.ID); err != nil {
		return translateCatalogError(err)
	}
	s.logger(ctx, catalogEventDeleted, map[string]any{"serviceId": offering.ID})
	return nil
}

func (s *catalogService) IssueImageUpload(ctx context.Context, cmd ImageUploadCommand) (pstorage.SignedURL, string, error) {
	if s.urls == nil || s.bucket == "" {
		return pstorage.SignedURL{}, "", fmt.Errorf("%w: image uploads are not configured", ErrCatalogUnavailable)
	}
	if cmd.Size <= 0 || cmd.Size > maxImageBytes {
		return pstorage.SignedURL{}, "", fmt.Errorf("%w: image size must be between 1 byte and %d bytes", ErrCatalogInvalidInput, maxImageBytes)
	}
	offering, err := s.GetService(ctx, cmd.ServiceID)
	if err != nil {
		return pstorage.SignedURL{}, "", err
	}
	object, err := pstorage.ServiceImagePath(offering.ID, s.newID(), cmd.FileName)
	if err != nil {
		return pstorage.SignedURL{}, "", fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	signed, err := s.urls.UploadURL(ctx, s.bucket, object, pstorage.UploadRequest{
		ContentType:  strings.TrimSpace(cmd.ContentType),
		AllowedTypes: allowedImageTypes,
		MaxBytes:     cmd.Size,
		ExpiresIn:    imageUploadExpiry,
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrContentTypeDenied) {
			return pstorage.SignedURL{}, "", fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		return pstorage.SignedURL{}, "", fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	publicURL := (&url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + s.bucket + "/" + object}).String()
	s.logger(ctx, catalogEventImageIssue, map[string]any{"serviceId": offering.ID, "object": object})
	return signed, publicURL, nil
}

func buildOffering(cmd UpsertServiceCommand) (ServiceOffering, error) {
	name := textutil.Clean(cmd.Name, maxServiceNameRunes)
	if name == "" {
		return ServiceOffering{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return ServiceOffering{}, fmt.Errorf("%w: price must be non-negative", ErrCatalogInvalidInput)
	}
	category, ok := domain.ParseServiceCategory(cmd.Category)
	if !ok {
		return ServiceOffering{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, cmd.Category)
	}
	vehicle := domain.VehicleAny
	if strings.TrimSpace(cmd.VehicleType) != "" {
		if vehicle, ok = domain.ParseVehicleType(cmd.VehicleType); !ok {
			return ServiceOffering{}, fmt.Errorf("%w: unknown vehicle type %q", ErrCatalogInvalidInput, cmd.VehicleType)
		}
	}
	status := domain.ServiceActive
	if strings.TrimSpace(cmd.Status) != "" {
		if status, ok = domain.ParseServiceStatus(cmd.Status); !ok {
			return ServiceOffering{}, fmt.Errorf("%w: unknown status %q", ErrCatalogInvalidInput, cmd.Status)
		}
	}
	tier, ok := domain.ParseTier(cmd.Tier)
	if !ok {
		return ServiceOffering{}, fmt.Errorf("%w: unknown tier %q", ErrCatalogInvalidInput, cmd.Tier)
	}
	imageURL := strings.TrimSpace(cmd.ImageURL)
	if imageURL != "" {
		if u, err := url.Parse(imageURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return ServiceOffering{}, fmt.Errorf("%w: image url must be an absolute http(s) url", ErrCatalogInvalidInput)
		}
	}
	return ServiceOffering{
		Name:         name,
		Description:  textutil.CleanMultiline(cmd.Description, maxDescriptionRunes),
		Category:     category,
		Price:        cmd.Price,
		VehicleType:  vehicle,
		Status:       status,
		Supplier:     textutil.Clean(cmd.Supplier, maxSupplierRunes),
		Discountable: cmd.Discountable,
		ImageURL:     imageURL,
		Tier:         tier,
	}, nil
}

func translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
