/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts game activity. Each server gets its own registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	roomsCreated  prometheus.Counter
	playersJoined prometheus.Counter
	gamesStarted  prometheus.Counter
	submissions   prometheus.Counter
	gamesDone     prometheus.Counter
	apiErrors     *prometheus.CounterVec
	openStreams   prometheus.Gauge
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry:     reg,
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "rooms_created_total",
			Help:      "Rooms created.",
		}),
		playersJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "players_joined_total",
			Help:      "Players who joined an existing room.",
		}),
		gamesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "games_started_total",
			Help:      "Start requests accepted.",
		}),
		submissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "placement_submissions_total",
			Help:      "Placement submissions accepted.",
		}),
		gamesDone: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "games_completed_total",
			Help:      "Games completed by a final submission.",
		}),
		apiErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plottwist",
			Name:      "api_errors_total",
			Help:      "API requests that ended in an error, by kind.",
		}, []string{"kind"}),
		openStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "plottwist",
			Name:      "open_streams",
			Help:      "Room streams currently connected.",
		}),
	}
}

func (m *Metrics) handler() httprouter.Handle {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}
