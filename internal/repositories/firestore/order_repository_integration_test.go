//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	pconfig "github.com/sauber-detailing/pos-api/internal/platform/config"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	endpoint := emulatorEndpoint(t)
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("orders-test-%d", time.Now().UnixNano()),
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	t.Run("mark paid after delete", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
		order := sampleOrder("ord-gone", base)
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.Delete(ctx, order.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}

		called := false
		_, changed, err := repo.MarkPaid(ctx, order.ID, func(o domain.Order) domain.Order {
			called = true
			return o
		})
		if !pfirestore.IsNotFound(err) {
			t.Fatalf("expected not-found for a deleted order, got %v", err)
		}
		if changed || called {
			t.Fatalf("payment must not be applied to a deleted order (changed=%v called=%v)", changed, called)
		}
		if _, err := repo.FindByID(ctx, order.ID); !pfirestore.IsNotFound(err) {
			t.Fatalf("expected deleted order to stay deleted, got %v", err)
		}
	})

	t.Run("mark paid once", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		base := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
		order := sampleOrder("ord-pay", base)
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert: %v", err)
		}
		paidAt := base.Add(time.Hour)
		pay := func(o domain.Order) domain.Order {
			o.PaymentStatus = domain.PaymentPaid
			o.PaidAt = &paidAt
			return o
		}

		paid, changed, err := repo.MarkPaid(ctx, order.ID, pay)
		if err != nil || !changed {
			t.Fatalf("expected first payment to apply, changed=%v err=%v", changed, err)
		}
		if !paid.IsPaid() || paid.PaidAt == nil || !paid.PaidAt.Equal(paidAt) {
			t.Fatalf("unexpected paid order %+v", paid)
		}

		again, changed, err := repo.MarkPaid(ctx, order.ID, pay)
		if err != nil || changed {
			t.Fatalf("expected repeated payment to be a no-op, changed=%v err=%v", changed, err)
		}
		if again.PaidAt == nil || !again.PaidAt.Equal(paidAt) {
			t.Fatalf("expected stored paidAt to survive, got %+v", again.PaidAt)
		}
	})

	t.Run("delete requires existing document", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := repo.Delete(ctx, "ord-never-written"); !pfirestore.IsNotFound(err) {
			t.Fatalf("expected not-found deleting a missing order, got %v", err)
		}

		order := sampleOrder("ord-twice", time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC))
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.Delete(ctx, order.ID); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := repo.Delete(ctx, order.ID); !pfirestore.IsNotFound(err) {
			t.Fatalf("expected second delete to report not-found, got %v", err)
		}
	})

	t.Run("list orders newest first and pages by cursor", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
		fixtures := []domain.Order{
			sampleOrder("ord-a", base),
			sampleOrder("ord-b", base.Add(time.Hour)),
			sampleOrder("ord-c", base.Add(time.Hour)),
			sampleOrder("ord-d", base.Add(2*time.Hour)),
			sampleOrder("ord-e", base.Add(3*time.Hour)),
		}
		for _, order := range fixtures {
			if err := repo.Insert(ctx, order); err != nil {
				t.Fatalf("insert %s: %v", order.ID, err)
			}
		}
		window := domain.TimeRange{From: base, To: base.Add(3 * time.Hour)}

		all, err := repo.Scan(ctx, domain.OrderFilter{Created: window})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		want := []string{"ord-e", "ord-d", "ord-c", "ord-b", "ord-a"}
		if got := orderIDs(all); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("expected createdAt desc with id tiebreak %v, got %v", want, got)
		}

		var (
			paged []string
			token string
			pages int
		)
		for {
			page, err := repo.List(ctx, domain.OrderFilter{
				Created:    window,
				Pagination: domain.Pagination{PageSize: 2, PageToken: token},
			})
			if err != nil {
				t.Fatalf("list page %d: %v", pages+1, err)
			}
			pages++
			paged = append(paged, orderIDs(page.Items)...)
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
			if pages > len(fixtures) {
				t.Fatalf("cursor paging did not terminate, seen %v", paged)
			}
		}
		if pages != 3 {
			t.Fatalf("expected 3 pages of size 2, got %d", pages)
		}
		if strings.Join(paged, ",") != strings.Join(want, ",") {
			t.Fatalf("expected cursor pages to cover %v exactly once, got %v", want, paged)
		}

		paidOnly, err := repo.List(ctx, domain.OrderFilter{
			PaymentStatus: domain.PaymentPaid,
			Created:       window,
		})
		if err != nil {
			t.Fatalf("list paid: %v", err)
		}
		if len(paidOnly.Items) != 0 || paidOnly.NextPageToken != "" {
			t.Fatalf("expected no paid orders in window, got %+v", paidOnly)
		}
	})

	t.Run("watch delivers snapshots until the consumer stops", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		if err := repo.Insert(ctx, sampleOrder("ord-w1", base)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		filter := domain.OrderFilter{Created: domain.TimeRange{From: base, To: base.Add(time.Hour)}}

		var seen [][]string
		for snapshot, err := range repo.Watch(ctx, filter) {
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
			seen = append(seen, orderIDs(snapshot.Orders))
			if len(seen) == 1 {
				if err := repo.Insert(ctx, sampleOrder("ord-w2", base.Add(30*time.Minute))); err != nil {
					t.Fatalf("insert while watching: %v", err)
				}
				continue
			}
			break
		}

		if len(seen) != 2 {
			t.Fatalf("expected two snapshots before stopping, got %v", seen)
		}
		if strings.Join(seen[0], ",") != "ord-w1" {
			t.Fatalf("unexpected initial snapshot %v", seen[0])
		}
		if strings.Join(seen[1], ",") != "ord-w2,ord-w1" {
			t.Fatalf("expected new order at the head of the second snapshot, got %v", seen[1])
		}
		if ctx.Err() != nil {
			t.Fatalf("watch should stop on break, not on context expiry: %v", ctx.Err())
		}
	})
}

func sampleOrder(id string, createdAt time.Time) domain.Order {
	items := []domain.LineItem{{ID: "svc-wash", Name: "Exterior Wash", Price: 5000}}
	subtotal, total := domain.ComputeTotals(items, 0)
	return domain.Order{
		ID:            id,
		CustomerName:  "Ama Mensah",
		CustomerPhone: "0241111111",
		Vehicle:       domain.Vehicle{Make: "Toyota", Model: "Corolla"},
		Items:         items,
		Subtotal:      subtotal,
		Total:         total,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentUnpaid,
		CreatedAt:     createdAt,
		Operator:      domain.Operator{Name: "Kojo", Role: "staff"},
	}
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

// emulatorEndpoint prefers a running emulator from FIRESTORE_EMULATOR_HOST and otherwise
// starts one in docker for the lifetime of the test.
func emulatorEndpoint(t *testing.T) string {
	t.Helper()
	if host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")); host != "" {
		return host
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("FIRESTORE_EMULATOR_HOST unset and docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)
	return endpoint
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
