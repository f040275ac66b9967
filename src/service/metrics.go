package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frostnetworks/frost/src/node"
)

var (
	liveState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frost_node_running",
		Help: "1 while a live committee is installed, 0 while gated or bootstrapping.",
	})
	epochGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frost_committee_epoch",
		Help: "Current committee epoch.",
	})
	heightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frost_chain_height",
		Help: "Next undecided block height.",
	})
)

// CollectMetrics samples node gauges periodically until the node shuts
// down. Run it in its own goroutine.
func CollectMetrics(n *node.Node, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		state := n.GetState()
		if state == node.Shutdown {
			return
		}
		if state == node.Running {
			liveState.Set(1)
		} else {
			liveState.Set(0)
		}
		epochGauge.Set(float64(n.Epoch()))
		heightGauge.Set(float64(n.Height()))
	}
}
