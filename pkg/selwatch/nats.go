// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package selwatch

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

// NatsEvent is the JSON shape published per new SEL record.
type NatsEvent struct {
	Node       string `json:"node"`
	InstanceID string `json:"instance_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Source     string `json:"source"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	ObservedAt string `json:"observed_at"`
}

func convertToNatsEvent(event racadm.SELEvent, config *SelWatchConfig) NatsEvent {
	return NatsEvent{
		Node:       config.NodeName,
		InstanceID: config.InstanceID,
		Date:       event.Date,
		Time:       event.Time,
		Source:     event.Source,
		Severity:   event.Severity,
		Message:    event.Message,
		ObservedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func publishNatsEvent(nc *nats.Conn, subject string, event NatsEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal sel event")
		return
	}
	if err := nc.Publish(subject, payload); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish sel event")
	}
}
