// Package metrics registers the Prometheus instruments shared by the API
// and the sweep workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisioningTotal counts provisioning runs by outcome
	// ("provisioned", "rolled_back").
	ProvisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfleet",
		Name:      "provisioning_total",
		Help:      "Tenant provisioning runs by outcome.",
	}, []string{"outcome"})

	// ProvisioningDuration observes wall-clock provisioning time.
	ProvisioningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hostfleet",
		Name:      "provisioning_duration_seconds",
		Help:      "Wall-clock duration of tenant provisioning runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// RateLimitRejections counts requests rejected by the limiter, by
	// window and tier.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfleet",
		Name:      "ratelimit_rejections_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"window", "tier"})

	// SweepActions counts lifecycle sweep outcomes, by sweep and action
	// ("deleted", "suspended", "warned", "sampled", "pruned", "backed_up",
	// "failed").
	SweepActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfleet",
		Name:      "sweep_actions_total",
		Help:      "Lifecycle sweep actions by sweep and action.",
	}, []string{"sweep", "action"})

	// SweepDuration observes full sweep pass duration by sweep name.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostfleet",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of one full sweep pass.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"sweep"})

	// BackupBytes observes archive sizes by kind.
	BackupBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostfleet",
		Name:      "backup_archive_bytes",
		Help:      "Size of completed backup archives.",
		Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 10),
	}, []string{"kind"})
)
