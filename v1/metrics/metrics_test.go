package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterCoordinatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCoordinatorMetrics(reg)
	AcquireGrantedCounter.Inc()
	AcquireDeniedCounter.Inc()
	ReleaseCounter.Inc()
	RenewalCounter.Inc()
	LostLeaseCounter.Inc()
	NotificationDroppedCounter.Inc()
	HeldGauge.Set(2)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 7 {
		t.Fatalf("expected metrics registered, got %d families", len(mfs))
	}
}

func TestRegisterCoordinatorMetricsDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCoordinatorMetrics(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterCoordinatorMetrics(reg)
}
