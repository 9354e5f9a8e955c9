// Package metrics exposes Prometheus counters for the file pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels.
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpDelete   = "delete"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// NewTransferCounter registers outofsight_transfers_total{op,result} on reg.
func NewTransferCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outofsight",
			Name:      "transfers_total",
			Help:      "File transfers by operation and outcome.",
		},
		[]string{"op", "result"})
}

// NewTransferBytes registers outofsight_transfer_bytes_total{op} on reg.
func NewTransferBytes(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outofsight",
			Name:      "transfer_bytes_total",
			Help:      "Plaintext bytes accepted or served.",
		},
		[]string{"op"})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
