package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultVerified = "verified"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	HeadersRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcspv_headers_recorded_total",
		Help: "Height to header-hash bindings written to the store",
	})

	SyncedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btcspv_synced_height",
		Help: "Highest height recorded by the last completed sync",
	})

	ChainTip = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btcspv_chain_tip_height",
		Help: "Latest block height reported by the chain source",
	})

	SyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcspv_sync_errors_total",
		Help: "Headers rejected or failed during sync",
	})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcspv_verifications_total",
		Help: "Verification calls by operation and outcome",
	}, []string{"op", "result"})

	SourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "btcspv_source_request_duration_seconds",
		Help:    "Latency of chain source requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// ObserveVerification classifies a tri-state verification outcome.
func ObserveVerification(op string, ok bool, err error) {
	result := ResultRejected
	switch {
	case err != nil:
		result = ResultError
	case ok:
		result = ResultVerified
	}
	Verifications.WithLabelValues(op, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
