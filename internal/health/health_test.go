package health

import (
	"context"
	"sync"
	"testing"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("storage", func(_ context.Context) Status {
		return Status{Name: "storage", Healthy: true, Detail: "postgres"}
	})
	r.Register("reconciliation", func(_ context.Context) Status {
		return Status{Name: "reconciliation", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "storage" {
		t.Fatalf("expected registration order preserved, got %q first", statuses[0].Name)
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("storage", func(_ context.Context) Status {
		return Status{Name: "storage", Healthy: true}
	})
	r.Register("reconciliation", func(_ context.Context) Status {
		return Status{Name: "reconciliation", Healthy: false, Detail: "timer not running"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if statuses[1].Detail != "timer not running" {
		t.Fatalf("expected detail 'timer not running', got %q", statuses[1].Detail)
	}
}

func TestRegistryPanickingChecker(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func(_ context.Context) Status {
		panic("boom")
	})
	r.Register("storage", func(_ context.Context) Status {
		return Status{Name: "storage", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("panicking checker should report unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Healthy {
		t.Error("panicking checker should be marked unhealthy")
	}
	if !statuses[1].Healthy {
		t.Error("remaining checkers should still run after a panic")
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
