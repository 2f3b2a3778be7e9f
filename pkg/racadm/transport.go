// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"net"
	"regexp"
	"strconv"
	"time"
)

// Transport is the narrow contract over an interactive remote shell:
// send one line, read until a prompt pattern appears, close. The iDRAC
// CLI is strictly request/response, so at most one command may be in
// flight per transport.
type Transport interface {
	SendLine(line string) error
	ReadUntil(prompt *regexp.Regexp, timeout time.Duration) (string, error)
	Close() error
}

// Dialer establishes a Transport for the given config.
type Dialer func(cfg Config) (Transport, error)

// probePort checks plain TCP reachability of the management port so a
// closed or filtered port fails fast instead of hanging in the SSH
// handshake.
func probePort(cfg Config) error {
	addr := net.JoinHostPort(cfg.Endpoint, strconv.Itoa(cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return &ConnectionError{Endpoint: addr, Err: err}
	}
	return conn.Close()
}
