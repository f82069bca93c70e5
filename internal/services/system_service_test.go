package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

type healthRepoFunc func(context.Context) (domain.HealthReport, error)

func (f healthRepoFunc) Collect(ctx context.Context) (domain.HealthReport, error) { return f(ctx) }

func TestSystemServiceDerivesStatus(t *testing.T) {
	started := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: healthRepoFunc(func(context.Context) (domain.HealthReport, error) {
			return domain.HealthReport{Checks: map[string]domain.HealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"storage":   {Status: domain.HealthStatusDegraded},
			}}, nil
		}),
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "1.2.3", CommitSHA: "abc", Environment: "dev", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Uptime != 90*time.Minute || report.Version != "1.2.3" || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSystemServicePropagatesErrors(t *testing.T) {
	boom := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: healthRepoFunc(func(context.Context) (domain.HealthReport, error) {
		return domain.HealthReport{}, boom
	})})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected collect error, got %v", err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
}
