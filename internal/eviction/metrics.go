package eviction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Eviction reasons used as metric label values.
const (
	reasonExpired = "expired"
	reasonQuota   = "quota"
)

// removedTotal counts evicted tasks by reason.
var removedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "calcsync_eviction_removed_total",
	Help: "Tasks removed by eviction, by reason",
}, []string{"reason"})
