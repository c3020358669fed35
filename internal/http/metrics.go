package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"quorum/console/internal/bulk"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_credential_runs_total",
		Help: "Completed bulk credential runs by outcome tier.",
	}, []string{"outcome"})

	runItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_credential_run_items_total",
		Help: "Per-item outcomes across bulk credential runs.",
	}, []string{"status"})
)

func observeRun(report *bulk.RunReport) {
	runsTotal.WithLabelValues(string(report.Tier())).Inc()
	for _, outcome := range report.Outcomes {
		runItemsTotal.WithLabelValues(string(outcome.Status)).Inc()
	}
}
