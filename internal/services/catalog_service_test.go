package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
)

func newTestCatalog(t *testing.T, repo *stubServiceRepo, orders *memoryOrders, signer URLSigner) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Services:     repo,
		Orders:       orders,
		URLs:         signer,
		ImagesBucket: "sauber-images",
		Clock:        func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) },
		IDGenerator:  func() string { return "svc-new" },
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestCatalogCreateAppliesDefaults(t *testing.T) {
	repo := newStubServiceRepo()
	svc := newTestCatalog(t, repo, newMemoryOrders(), nil)

	offering, err := svc.CreateService(context.Background(), UpsertServiceCommand{
		Name:     "  Gold   Package ",
		Category: "package",
		Price:    8000,
		Tier:     "Gold",
	})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	if offering.ID != "svc-new" || offering.Name != "Gold Package" {
		t.Fatalf("unexpected offering %+v", offering)
	}
	if offering.VehicleType != domain.VehicleAny || offering.Status != domain.ServiceActive || offering.Tier != domain.TierGold {
		t.Fatalf("expected defaults, got %+v", offering)
	}
	if _, err := repo.FindByID(context.Background(), "svc-new"); err != nil {
		t.Fatalf("expected stored offering: %v", err)
	}
}

func TestCatalogCreateRejectsInvalid(t *testing.T) {
	svc := newTestCatalog(t, newStubServiceRepo(), newMemoryOrders(), nil)
	cases := []UpsertServiceCommand{
		{Category: "Package", Price: 1},
		{Name: "Wash", Category: "Bundle", Price: 1},
		{Name: "Wash", Category: "Extra", Price: -1},
		{Name: "Wash", Category: "Extra", VehicleType: "Truck"},
		{Name: "Wash", Category: "Extra", Status: "Archived"},
		{Name: "Wash", Category: "Extra", Tier: "bronze"},
		{Name: "Wash", Category: "Extra", ImageURL: "javascript:alert(1)"},
	}
	for i, cmd := range cases {
		if _, err := svc.CreateService(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("case %d: expected ErrCatalogInvalidInput, got %v", i, err)
		}
	}
}

func TestCatalogDeleteReferencedService(t *testing.T) {
	repo := newStubServiceRepo(offering("wax", 500), offering("unused", 100))
	orders := newMemoryOrders(domain.Order{ID: "o1", Items: []domain.LineItem{{ID: "wax", Name: "Wax", Price: 500}}})
	svc := newTestCatalog(t, repo, orders, nil)
	ctx := context.Background()

	if err := svc.DeleteService(ctx, "wax"); !errors.Is(err, ErrServiceInUse) {
		t.Fatalf("expected ErrServiceInUse, got %v", err)
	}
	deactivated, err := svc.DeactivateService(ctx, "wax")
	if err != nil {
		t.Fatalf("DeactivateService: %v", err)
	}
	if deactivated.Status != domain.ServiceInactive {
		t.Fatalf("expected inactive, got %s", deactivated.Status)
	}
	if err := svc.DeleteService(ctx, "unused"); err != nil {
		t.Fatalf("DeleteService: %v", err)
	}
	if err := svc.DeleteService(ctx, "unused"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestCatalogUpdateKeepsIdentity(t *testing.T) {
	existing := offering("wax", 500)
	existing.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newStubServiceRepo(existing)
	svc := newTestCatalog(t, repo, newMemoryOrders(), nil)

	updated, err := svc.UpdateService(context.Background(), "wax", UpsertServiceCommand{Name: "Hard Wax", Category: "Add-on", Price: 700})
	if err != nil {
		t.Fatalf("UpdateService: %v", err)
	}
	if updated.ID != "wax" || !updated.CreatedAt.Equal(existing.CreatedAt) || updated.Price != 700 {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.UpdateService(context.Background(), "nope", UpsertServiceCommand{Name: "x", Category: "Extra"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestCatalogStoreFailure(t *testing.T) {
	repo := newStubServiceRepo()
	repo.listErr = errStoreDown
	svc := newTestCatalog(t, repo, newMemoryOrders(), nil)
	if _, err := svc.ListServices(context.Background(), domain.ServiceFilter{}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestCatalogIssueImageUpload(t *testing.T) {
	var captured pstorage.UploadRequest
	var capturedObject string
	signer := stubSigner{uploadFn: func(_ context.Context, bucket, object string, req pstorage.UploadRequest) (pstorage.SignedURL, error) {
		if bucket != "sauber-images" {
			t.Fatalf("unexpected bucket %s", bucket)
		}
		captured, capturedObject = req, object
		if req.ContentType == "image/gif" {
			return pstorage.SignedURL{}, pstorage.ErrContentTypeDenied
		}
		return pstorage.SignedURL{URL: "https://signed", Method: "PUT"}, nil
	}}
	svc := newTestCatalog(t, newStubServiceRepo(offering("wax", 500)), newMemoryOrders(), signer)
	ctx := context.Background()

	signed, public, err := svc.IssueImageUpload(ctx, ImageUploadCommand{ServiceID: "wax", FileName: "../Front View.png", ContentType: "image/png", Size: 1024})
	if err != nil {
		t.Fatalf("IssueImageUpload: %v", err)
	}
	if signed.Method != "PUT" || captured.MaxBytes != 1024 || captured.ExpiresIn != imageUploadExpiry {
		t.Fatalf("unexpected request %+v / %+v", signed, captured)
	}
	if public != "https://storage.googleapis.com/sauber-images/"+capturedObject {
		t.Fatalf("unexpected public url %s", public)
	}

	if _, _, err := svc.IssueImageUpload(ctx, ImageUploadCommand{ServiceID: "wax", ContentType: "image/png", Size: maxImageBytes + 1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if _, _, err := svc.IssueImageUpload(ctx, ImageUploadCommand{ServiceID: "wax", ContentType: "image/gif", Size: 10}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected content type rejection, got %v", err)
	}
	if _, _, err := svc.IssueImageUpload(ctx, ImageUploadCommand{ServiceID: "ghost", ContentType: "image/png", Size: 10}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
