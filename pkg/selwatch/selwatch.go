// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package selwatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

// SELSource reads the system event log. *racadm.Client satisfies it.
type SELSource interface {
	SEL(ctx context.Context, severities ...string) (*racadm.SELScanner, error)
}

// StartWatching polls the SEL at the configured interval and emits
// every record not seen in the previous poll, to NATS and/or
// Prometheus. It blocks until the context is done.
func StartWatching(ctx context.Context, source SELSource, config SelWatchConfig) error {
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}

	var nc *nats.Conn
	if config.UseNats {
		var err error
		nc, err = nats.Connect(config.NatsURL)
		if err != nil {
			return err
		}
		defer nc.Close()
		log.Info().Str("nats_url", config.NatsURL).Str("subject", config.NatsSubject).Msg("connected to NATS")
	}
	if config.Prometheus {
		startPrometheusServer(config.PrometheusPort)
	}

	interval := time.Duration(config.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeen racadm.SELEvent
	var primed bool
	for {
		events, err := collectEvents(ctx, source, config.Severities)
		if err != nil {
			selPollErrorsTotal.Inc()
			log.Error().Err(err).Msg("failed to read system event log")
		} else {
			fresh := newEvents(events, lastSeen, primed)
			for _, event := range fresh {
				natsEvent := convertToNatsEvent(event, &config)
				recordEventMetrics(natsEvent)
				if nc != nil {
					publishNatsEvent(nc, config.NatsSubject, natsEvent)
				}
				log.Debug().Str("severity", event.Severity).Str("message", event.Message).Msg("sel event")
			}
			if len(events) > 0 {
				lastSeen = events[len(events)-1]
				primed = true
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func collectEvents(ctx context.Context, source SELSource, severities []string) ([]racadm.SELEvent, error) {
	scanner, err := source.SEL(ctx, severities...)
	if err != nil {
		return nil, err
	}
	var events []racadm.SELEvent
	for scanner.Next() {
		events = append(events, scanner.Event())
	}
	return events, scanner.Err()
}

// newEvents returns the suffix of events after the last record of the
// previous poll. The SEL is append-only, so the previous tail anchors
// the cut; if it is gone (log cleared) everything is fresh again. The
// first poll establishes the baseline and reports the full log.
func newEvents(events []racadm.SELEvent, lastSeen racadm.SELEvent, primed bool) []racadm.SELEvent {
	if !primed {
		return events
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i] == lastSeen {
			return events[i+1:]
		}
	}
	return events
}
