package sweep

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxloop/trialguard/pkg/metrics"
)

var (
	phaseOnce sync.Once
	phaseHist *prometheus.HistogramVec
)

// observePhase records the duration of one sweep phase under the shared
// business-process histogram.
func observePhase(phase string, elapsed time.Duration) {
	phaseOnce.Do(func() {
		collector := metrics.NewMetric(metrics.MetricsBusinessProcess, "trialguard")
		if hv, ok := collector.(*prometheus.HistogramVec); ok {
			if err := prometheus.Register(hv); err == nil {
				phaseHist = hv
			} else if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				phaseHist = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	})
	if phaseHist != nil {
		phaseHist.WithLabelValues("sweep", phase).Observe(float64(elapsed.Milliseconds()))
	}
}
