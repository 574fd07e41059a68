package sim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redistrict_steps_total",
		Help: "Search steps by outcome status and rejection reason",
	}, []string{"status", "reason"})

	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redistrict_replays_total",
		Help: "Rejected moves later accepted through ledger replay",
	})

	scoreGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redistrict_score",
		Help: "Objective value after the latest step",
	})

	ledgerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redistrict_ledger_size",
		Help: "Rejected moves held for replay",
	})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "redistrict_step_duration_seconds",
		Help:    "Time spent in one search step",
		Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redistrict_runs_total",
		Help: "Finished runs by end reason",
	}, []string{"reason"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redistrict_frames_dropped_total",
		Help: "Frames a slow subscriber did not receive",
	})
)
