package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAllUp(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp, Message: "3 documents indexed"}
	})
	c.Register("redis", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp}
	})

	report := c.Run(context.Background())
	if report.Status != StatusUp {
		t.Errorf("Status = %s, want up", report.Status)
	}
	if len(report.Components) != 2 {
		t.Errorf("Components = %d, want 2", len(report.Components))
	}
	if report.Components["index"].Latency == "" {
		t.Error("latency not recorded")
	}
}

func TestRunDegradedDominatesUp(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("redis", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "not configured"}
	})

	if report := c.Run(context.Background()); report.Status != StatusDegraded {
		t.Errorf("Status = %s, want degraded", report.Status)
	}
}

func TestRunDownDominatesAll(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown, Message: "no corpus loaded"}
	})
	c.Register("redis", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})

	if report := c.Run(context.Background()); report.Status != StatusDown {
		t.Errorf("Status = %s, want down", report.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp}
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Status != StatusUp {
		t.Errorf("Status = %s, want up", report.Status)
	}
}

func TestReadyHandlerUnavailableWhenDown(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown}
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestLiveHandler(t *testing.T) {
	c := NewChecker()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
