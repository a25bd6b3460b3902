package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass results used as metric label values.
const (
	passClean = "clean"
	passError = "error"
)

// passesTotal counts finished drain passes by result.
var passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "calcsync_sync_passes_total",
	Help: "Finished sync passes by result",
}, []string{"result"})
