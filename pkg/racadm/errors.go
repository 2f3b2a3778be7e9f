// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"fmt"
	"time"
)

// ConnectionError indicates the management endpoint is unreachable or
// the session could not be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unable to connect idrac %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("unable to connect idrac %s", e.Endpoint)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError indicates the credentials were rejected. It is fatal and
// never retried.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication refused by %s: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CommandError is returned when a command still reports an error after
// the retry budget is exhausted. Output carries the raw device
// response.
type CommandError struct {
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Output)
}

// KeyNotFoundError is returned on registry access or staging of a key
// the device never reported.
type KeyNotFoundError struct {
	Registry string
	Key      string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in registry %s", e.Key, e.Registry)
}

// ParseError indicates structurally malformed device output. The raw
// content is logged at the parse site before the error propagates.
type ParseError struct {
	What   string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("error parsing %s: %s", e.What, e.Detail)
	}
	return fmt.Sprintf("error parsing %s", e.What)
}

// ProfileError is returned when a storage profile's disk layout cannot
// be satisfied by the discovered disks. No command has been issued.
type ProfileError struct {
	Profile string
	Reason  string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("profile %q: %s", e.Profile, e.Reason)
}

// TimeoutError is returned when a bounded wait elapses before the
// awaited condition is observed.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Elapsed, e.Op)
}
