// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "durak",
		Name:      "rooms_active",
		Help:      "Rooms currently held in memory.",
	})

	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "durak",
		Name:      "rooms_created_total",
		Help:      "Rooms created since start.",
	})

	SessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "durak",
		Name:      "sessions_connected",
		Help:      "Open WebSocket game sessions.",
	})

	Intents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "durak",
		Name:      "intents_total",
		Help:      "Player intents by kind and outcome.",
	}, []string{"kind", "result"})

	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "durak",
		Name:      "games_finished_total",
		Help:      "Finished rounds by mode and outcome (durak or draw).",
	}, []string{"mode", "outcome"})

	GameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "durak",
		Name:      "game_duration_seconds",
		Help:      "Wall time from deal to result.",
		Buckets:   prometheus.ExponentialBuckets(30, 2, 8),
	}, []string{"mode"})

	ActionPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "durak",
		Name:      "action_publish_failures_total",
		Help:      "Action records that could not be pushed to Redis.",
	})

	HistorianRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "durak",
		Name:      "historian_records_total",
		Help:      "Action records drained by the historian, by result.",
	}, []string{"result"})
)
