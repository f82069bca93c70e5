package firestore

import (
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

func TestOrderDocumentRoundTripKeepsLineItemOrder(t *testing.T) {
	created := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:           "o-1",
		CustomerName: "Ama",
		Vehicle:      domain.Vehicle{Make: "Toyota", Plate: "GR-1234-26"},
		Items: []domain.LineItem{
			{ID: "svc-a", Name: "A", Price: 1000, Tier: domain.TierGold},
			{ID: "c-1", Name: "B", Price: 2000, Custom: true},
		},
		Subtotal:      3000,
		Total:         3000,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentUnpaid,
		CreatedAt:     created,
		Operator:      domain.Operator{Name: "Kofi", Role: "cashier"},
	}

	doc := fromDomainOrder(order)
	if len(doc.ServiceIDs) != 1 || doc.ServiceIDs[0] != "svc-a" {
		t.Fatalf("expected only catalog ids to be indexed, got %v", doc.ServiceIDs)
	}
	got := doc.toDomain("o-1")
	if len(got.Items) != 2 || got.Items[0].Name != "A" || got.Items[1].Name != "B" {
		t.Fatalf("unexpected items %+v", got.Items)
	}
	if got.Items[0].Price != 1000 || got.Items[1].Price != 2000 || !got.Items[1].Custom {
		t.Fatalf("unexpected item values %+v", got.Items)
	}
	if got.Items[0].Tier != domain.TierGold || got.Total != 3000 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestOrderDocumentDefaultsForSparseRecords(t *testing.T) {
	got := orderDocument{CustomerName: "Kwame"}.toDomain("o-2")
	if got.Status != domain.OrderPending || got.PaymentStatus != domain.PaymentUnpaid {
		t.Fatalf("expected pending/unpaid defaults, got %s/%s", got.Status, got.PaymentStatus)
	}
	if got.Items == nil || len(got.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", got.Items)
	}
}

func TestServiceDocumentDefaults(t *testing.T) {
	got := serviceDocument{Name: "Wash", Price: -5}.toDomain("svc-1")
	if got.Status != domain.ServiceActive || got.VehicleType != domain.VehicleAny || got.Price != 0 {
		t.Fatalf("unexpected defaults %+v", got)
	}
}
