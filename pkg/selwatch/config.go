// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package selwatch

type SelWatchConfig struct {
	NatsURL     string
	NatsSubject string
	UseNats     bool

	Prometheus     bool
	PrometheusPort int

	Interval   int // in seconds
	Severities []string

	NodeName   string
	InstanceID string
}
