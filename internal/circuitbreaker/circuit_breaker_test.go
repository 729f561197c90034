package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

var errGatewayDown = errors.New("gateway down")

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{
		Name:        "notify",
		MaxFailures: 3,
		Timeout:     time.Minute,
		MaxRequests: 1,
	}, testLogger())

	fail := func() error { return errGatewayDown }

	for i := 0; i < 3; i++ {
		if cb.State() != StateClosed {
			t.Fatalf("expected closed before failure %d, got %s", i, cb.State())
		}
		if err := cb.Execute(fail); err != errGatewayDown {
			t.Fatalf("expected gateway error, got %v", err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open after %d failures, got %s", 3, cb.State())
	}

	if err := cb.Execute(fail); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{Name: "notify", MaxFailures: 2, Timeout: time.Minute}, testLogger())

	cb.Execute(func() error { return errGatewayDown })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errGatewayDown })

	if cb.State() != StateClosed {
		t.Fatalf("expected closed after interleaved success, got %s", cb.State())
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := New(Config{
		Name:        "notify",
		MaxFailures: 1,
		Timeout:     20 * time.Millisecond,
		MaxRequests: 1,
	}, testLogger())

	cb.Execute(func() error { return errGatewayDown })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(30 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should pass through, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := New(Config{
		Name:        "notify",
		MaxFailures: 1,
		Timeout:     20 * time.Millisecond,
		MaxRequests: 1,
	}, testLogger())

	cb.Execute(func() error { return errGatewayDown })
	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(func() error { return errGatewayDown }); err != errGatewayDown {
		t.Fatalf("probe should pass through, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened after failed probe, got %s", cb.State())
	}
}

func TestConfigDefaults(t *testing.T) {
	cb := New(Config{}, testLogger())
	if cb.name != "unnamed" || cb.maxFailures != 5 || cb.timeout != 30*time.Second || cb.maxRequests != 1 {
		t.Fatalf("unexpected defaults: %+v", cb)
	}
}

func TestExecuteConcurrentAccess(t *testing.T) {
	cb := New(Config{
		Name:        "notify",
		MaxFailures: 3,
		Timeout:     100 * time.Millisecond,
		MaxRequests: 2,
	}, testLogger())

	const numGoroutines = 100
	const numIterations = 10

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				cb.Execute(func() error {
					if (n+j)%3 == 0 {
						return errGatewayDown
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	metrics := cb.Metrics()
	total := metrics["total_requests"]
	accounted := metrics["total_failures"] + metrics["total_successes"] + metrics["total_rejected"]

	if total != int64(numGoroutines*numIterations) {
		t.Errorf("expected %d total requests, got %d", numGoroutines*numIterations, total)
	}
	if total != accounted {
		t.Errorf("inconsistent metrics: total=%d, accounted=%d", total, accounted)
	}

	t.Logf("Processed %d requests: %d successes, %d failures, %d rejected; final state %s",
		total, metrics["total_successes"], metrics["total_failures"], metrics["total_rejected"], cb.State())
}
