package ft

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricServerInterests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_server_interests_total",
		Help: "Interests received by the file-transfer producer",
	})
	metricServerData = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_server_data_total",
		Help: "Data packets sent by the file-transfer producer",
	})
	metricServerNacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndnc_server_nacks_total",
		Help: "Nack answers sent by the file-transfer producer",
	})
)
