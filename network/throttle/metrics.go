package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricOutboundFrames counts the frames written thru Handle by result;
	// forwarded, dropped or blackholed.
	metricOutboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "throttler_outbound_frames_total",
		Help: "Total number of outbound frames by throttling result",
	}, []string{"result"})

	// metricInboundFrames counts the inbound frames delivered to or discarded
	// before the upstream.
	metricInboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "throttler_inbound_frames_total",
		Help: "Total number of inbound frames by throttling result",
	}, []string{"result"})

	metricAssociations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "throttler_associations_gauge",
		Help: "The number of running throttled associations",
	})

	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "throttler_commands_total",
		Help: "Total number of processed management commands",
	}, []string{"command"})

	metricAskTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "throttler_ask_timeouts_total",
		Help: "Total number of expired acknowledge waits",
	})
)
