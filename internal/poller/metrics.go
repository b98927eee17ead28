// SPDX-License-Identifier: MIT

package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamelink_poll_cycles_total",
	Help: "Number of host poll cycles by result",
}, []string{"result"})

func recordPollCycle(online bool) {
	result := "offline"
	if online {
		result = "online"
	}
	pollCyclesTotal.WithLabelValues(result).Inc()
}
