// SPDX-License-Identifier: MIT

package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pairOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamelink_pair_outcomes_total",
	Help: "Number of finished pair attempts by outcome",
}, []string{"outcome"})

func recordPairOutcome(outcome string) {
	pairOutcomesTotal.WithLabelValues(outcome).Inc()
}
