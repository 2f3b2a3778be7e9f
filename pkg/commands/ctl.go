// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

var (
	v string

	endpoint   string
	port       int
	user       string
	password   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "draco",
	Short: "CLI for Dell iDRAC automation",
	Long:  "A CLI tool to automate Dell iDRAC management: storage profiles, BIOS registries, hardware inventory and event log collection.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setUpLogs(v); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&v, "verbosity", "v", zerolog.WarnLevel.String(), "Log level (debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "iDRAC address")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "iDRAC SSH port (default 22)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "iDRAC user")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "iDRAC password")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Connection config file")

	// Add subcommands
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(selCmd)
	rootCmd.AddCommand(serverActionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'\n", err)
		os.Exit(1)
	}
}

// setUpLogs sets the log output and the log level
func setUpLogs(level string) error {
	zerolog.SetGlobalLevel(zerolog.WarnLevel) // Default level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger() // Default to JSON output
	return nil
}

// newRacadmClient builds the client from config file, flags and
// environment, in ascending precedence.
func newRacadmClient() (*racadm.Client, error) {
	cfg := racadm.Config{}
	if configPath != "" {
		loaded, err := racadm.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if port != 0 {
		cfg.Port = port
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Password = password
	}

	cfg.Endpoint = getEnv("DRACO_ENDPOINT", cfg.Endpoint)
	cfg.Port = getEnvInt("DRACO_PORT", cfg.Port)
	cfg.User = getEnv("DRACO_USER", cfg.User)
	cfg.Password = getEnv("DRACO_PASSWORD", cfg.Password)

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no iDRAC endpoint configured")
	}
	if cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("no iDRAC credentials configured")
	}
	return racadm.NewClient(cfg), nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
