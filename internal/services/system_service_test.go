package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

type stubSweeper struct {
	removed int
	err     error
	calls   int
}

func (s *stubSweeper) RunOnce(context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.2.3",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}

	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "prod" {
		t.Fatalf("expected build metadata, got %+v", report)
	}
	if report.Uptime != now.Sub(start) {
		t.Fatalf("expected uptime %s, got %s", now.Sub(start), report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	expected := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: expected}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}

func TestSystemServiceDerivesStatusWhenMissing(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"pubsub":    {Status: domain.HealthStatusDegraded},
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
}

func TestSystemServiceSweepPendingPayments(t *testing.T) {
	sweeper := &stubSweeper{removed: 3}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{}, Sweeper: sweeper})

	removed, err := svc.SweepPendingPayments(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 3 || sweeper.calls != 1 {
		t.Fatalf("expected delegation, got removed=%d calls=%d", removed, sweeper.calls)
	}
}

func TestSystemServiceSweepWithoutSweeper(t *testing.T) {
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{}})
	if _, err := svc.SweepPendingPayments(context.Background()); !errors.Is(err, ErrSystemUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
