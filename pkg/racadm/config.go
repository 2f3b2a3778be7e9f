// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the connection settings and timing knobs for one iDRAC
// session.
type Config struct {
	Endpoint string `mapstructure:"endpoint"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// ConnectTimeout bounds the reachability probe and the SSH dial.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// ReadTimeout bounds a single prompt-terminated read.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// BusyBackoff is slept between resends while the device reports the
	// profile-export busy code.
	BusyBackoff time.Duration `mapstructure:"busy_backoff"`
	// AuthRetryDelay is slept between login attempts.
	AuthRetryDelay time.Duration `mapstructure:"auth_retry_delay"`
	// JobPollInterval is the delay between job status polls.
	JobPollInterval time.Duration `mapstructure:"job_poll_interval"`
	// JobWaitTimeout bounds a job wait. Zero or negative disables the
	// bound and restores unbounded polling.
	JobWaitTimeout time.Duration `mapstructure:"job_wait_timeout"`
}

const (
	defaultPort            = 22
	defaultConnectTimeout  = 10 * time.Second
	defaultReadTimeout     = 60 * time.Second
	defaultBusyBackoff     = 10 * time.Second
	defaultAuthRetryDelay  = 1 * time.Second
	defaultJobPollInterval = 2 * time.Second
	defaultJobWaitTimeout  = 30 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.BusyBackoff == 0 {
		c.BusyBackoff = defaultBusyBackoff
	}
	if c.AuthRetryDelay == 0 {
		c.AuthRetryDelay = defaultAuthRetryDelay
	}
	if c.JobPollInterval == 0 {
		c.JobPollInterval = defaultJobPollInterval
	}
	if c.JobWaitTimeout == 0 {
		c.JobWaitTimeout = defaultJobWaitTimeout
	}
	return c
}

// LoadConfig reads a connection config file (YAML, TOML or JSON as
// understood by viper).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &config, nil
}
