package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireGrantedCounter tracks lock acquisitions that succeeded.
	AcquireGrantedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_acquire_granted_total",
		Help: "Total number of granted lock acquisitions",
	})
	// AcquireDeniedCounter tracks acquisitions denied because another
	// context holds a live lease.
	AcquireDeniedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_acquire_denied_total",
		Help: "Total number of denied lock acquisitions",
	})
	// ReleaseCounter tracks lock releases.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_release_total",
		Help: "Total number of lock releases",
	})
	// RenewalCounter tracks background lease renewals.
	RenewalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_renewal_total",
		Help: "Total number of lease renewals",
	})
	// LostLeaseCounter tracks leases found owned by another context during
	// renewal.
	LostLeaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_lost_lease_total",
		Help: "Total number of leases lost to another context",
	})
	// NotificationDroppedCounter tracks inbound bus messages discarded as
	// malformed, duplicated or self-published.
	NotificationDroppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editlock_notification_dropped_total",
		Help: "Total number of dropped inbound notifications",
	})
	// HeldGauge reports the number of resources currently held.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "editlock_held_resources",
		Help: "Current number of held resources",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoordinatorMetrics registers editlock metrics on the provided registry.
func RegisterCoordinatorMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		AcquireGrantedCounter,
		AcquireDeniedCounter,
		ReleaseCounter,
		RenewalCounter,
		LostLeaseCounter,
		NotificationDroppedCounter,
		HeldGauge,
	)
}
