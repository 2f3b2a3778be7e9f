// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/draco/pkg/selwatch"
)

var (
	selSeverities []string

	swNatsURL     string
	swNatsSubject string
	swPromEnabled bool
	swPromPort    int
	swInterval    int
	swNodeName    string
	swInstanceID  string
)

var selCmd = &cobra.Command{
	Use:   "sel",
	Short: "System event log commands",
}

var selShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Dump the system event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		scanner, err := client.SEL(cmd.Context(), selSeverities...)
		if err != nil {
			return err
		}
		for scanner.Next() {
			fmt.Println(scanner.Event())
		}
		return scanner.Err()
	},
}

var selWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the system event log and publish new records",
	RunE: func(cmd *cobra.Command, args []string) error {
		config := selwatch.SelWatchConfig{
			NatsURL:        swNatsURL,
			NatsSubject:    swNatsSubject,
			Prometheus:     swPromEnabled,
			PrometheusPort: swPromPort,
			Interval:       swInterval,
			Severities:     selSeverities,
			NodeName:       swNodeName,
			InstanceID:     swInstanceID,
		}

		config = mergeSelWatchConfigWithEnv(config)
		config.UseNats = config.NatsURL != ""

		event := log.Info()
		event.Bool("use_nats", config.UseNats)
		if config.UseNats {
			event.Str("nats_url", config.NatsURL)
			event.Str("nats_subject", config.NatsSubject)
		}
		event.Bool("prometheus_enabled", config.Prometheus)
		if config.Prometheus {
			event.Int("prometheus_port", config.PrometheusPort)
		}
		event.Str("severities", fmt.Sprintf("%v", config.Severities)).
			Str("node_name", config.NodeName).
			Int("interval_seconds", config.Interval)
		event.Msg("configuration_loaded")

		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		return selwatch.StartWatching(cmd.Context(), client, config)
	},
}

func mergeSelWatchConfigWithEnv(cfg selwatch.SelWatchConfig) selwatch.SelWatchConfig {
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.NatsSubject = getEnv("NATS_SUBJECT", cfg.NatsSubject)
	cfg.Prometheus = getEnvBool("PROMETHEUS", cfg.Prometheus)
	cfg.PrometheusPort = getEnvInt("PROMETHEUS_PORT", cfg.PrometheusPort)
	cfg.Interval = getEnvInt("INTERVAL", cfg.Interval)
	cfg.NodeName = getEnv("NODE_NAME", cfg.NodeName)
	cfg.InstanceID = getEnv("INSTANCE_ID", cfg.InstanceID)
	severitiesEnv := getEnv("SEVERITIES", "")
	if severitiesEnv != "" {
		cfg.Severities = strings.Split(severitiesEnv, ",")
	}
	return cfg
}

func init() {
	selCmd.PersistentFlags().StringSliceVar(&selSeverities, "severity", nil, "Only these severities (repeatable)")

	selWatchCmd.Flags().StringVar(&swNatsURL, "nats-url", "", "NATS server URL")
	selWatchCmd.Flags().StringVar(&swNatsSubject, "nats-subject", "idrac.sel.events", "NATS subject to publish events")
	selWatchCmd.Flags().BoolVar(&swPromEnabled, "prometheus", false, "Enable Prometheus metrics")
	selWatchCmd.Flags().IntVar(&swPromPort, "prometheus-port", 8080, "Prometheus metrics port")
	selWatchCmd.Flags().IntVar(&swInterval, "interval", 60, "Interval in seconds between event log polls")
	selWatchCmd.Flags().StringVar(&swNodeName, "node-name", "", "Node name label for published events")
	selWatchCmd.Flags().StringVar(&swInstanceID, "instance-id", "", "Instance id label (random when empty)")

	selCmd.AddCommand(selShowCmd)
	selCmd.AddCommand(selWatchCmd)
}
