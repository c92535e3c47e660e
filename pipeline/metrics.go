package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTxInterests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_pipeline_tx_interests_total",
		Help: "Interests handed to the face",
	})
	metricRxData = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_pipeline_rx_data_total",
		Help: "Data packets matched to a pending Interest",
	})
	metricTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_pipeline_timeouts_total",
		Help: "Pending Interests expired without a reply",
	})
	metricNacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_pipeline_nacks_total",
		Help: "Nacks matched to a pending Interest",
	})
	metricSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_pipeline_send_errors_total",
		Help: "Interests refused by the transport",
	})
	metricWindow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndnc_pipeline_window",
		Help: "Current congestion window",
	})
	metricPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndnc_pipeline_pending",
		Help: "Entries in the pending Interest table",
	})
)
