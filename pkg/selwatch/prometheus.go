// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package selwatch

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	selEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idrac_sel_events_total",
			Help: "System event log records observed, by severity",
		},
		[]string{"severity", "node", "instance"},
	)

	selPollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idrac_sel_poll_errors_total",
			Help: "Failed attempts to read the system event log",
		},
	)
)

func init() {
	prometheus.MustRegister(selEventsTotal)
	prometheus.MustRegister(selPollErrorsTotal)
}

func recordEventMetrics(event NatsEvent) {
	selEventsTotal.WithLabelValues(event.Severity, event.Node, event.InstanceID).Inc()
}

func startPrometheusServer(port int) {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("serving prometheus metrics")
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatal().Err(err).Msg("prometheus metrics server failed")
		}
	}()
}
