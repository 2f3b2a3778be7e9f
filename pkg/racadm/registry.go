// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry is a change-tracked view of one named group of key-value
// settings on the device. Reads see staged values first, then the
// committed state loaded from the device. Writes stage changes only;
// nothing reaches the device until Write. The key set is fixed at load
// time: staging a key the device never reported fails.
type Registry struct {
	name   string
	exec   Executor
	logger zerolog.Logger

	committedKeys []string
	committed     map[string]string
	stagedKeys    []string
	staged        map[string]string
}

// LoadRegistry fetches the registry's current state from the device.
func LoadRegistry(ctx context.Context, exec Executor, name string) (*Registry, error) {
	registry := &Registry{
		name:   name,
		exec:   exec,
		logger: log.With().Str("registry", name).Logger(),
	}
	registry.logger.Info().Msg("loading registry")
	if err := registry.load(ctx); err != nil {
		return nil, err
	}
	return registry, nil
}

func (r *Registry) load(ctx context.Context) error {
	output, err := r.exec.Exec(ctx, "get "+r.name)
	if err != nil {
		return err
	}

	r.committed = make(map[string]string)
	r.committedKeys = nil

	lines := strings.Split(output, "\n")
	// the first line is the registry name header
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			r.logger.Error().Str("output", output).Msg("malformed registry dump")
			return &ParseError{What: "registry " + r.name, Detail: fmt.Sprintf("line without '=': %q", line)}
		}
		if _, known := r.committed[key]; !known {
			r.committedKeys = append(r.committedKeys, key)
		}
		r.committed[key] = value
	}

	return nil
}

// Name returns the device-side registry group name.
func (r *Registry) Name() string { return r.name }

// Get returns the staged value if one is pending, else the committed
// value.
func (r *Registry) Get(key string) (string, error) {
	if value, staged := r.staged[key]; staged {
		return value, nil
	}
	if value, known := r.committed[key]; known {
		return value, nil
	}
	return "", &KeyNotFoundError{Registry: r.name, Key: key}
}

// Has reports whether the key exists, committed or staged.
func (r *Registry) Has(key string) bool {
	_, known := r.committed[key]
	if !known {
		_, known = r.staged[key]
	}
	return known
}

// Keys returns all keys in device-reported order. Staged keys are
// always a subset of committed keys, so this is the full membership.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.committedKeys))
	copy(keys, r.committedKeys)
	return keys
}

// Set stages one value. Staging a value equal to the committed one
// never retains a change: it is dropped, along with any previously
// staged value for the key, so no no-op set command is ever emitted.
func (r *Registry) Set(key, value string) error {
	committed, known := r.committed[key]
	if !known {
		return &KeyNotFoundError{Registry: r.name, Key: key}
	}
	if value == committed {
		r.unstage(key)
		return nil
	}
	if r.staged == nil {
		r.staged = make(map[string]string)
	}
	if _, staged := r.staged[key]; !staged {
		r.stagedKeys = append(r.stagedKeys, key)
	}
	r.staged[key] = value
	return nil
}

// Update stages several values at once. All keys are validated before
// anything is staged, so an unknown key leaves the registry untouched.
func (r *Registry) Update(values map[string]string) error {
	for key := range values {
		if _, known := r.committed[key]; !known {
			return &KeyNotFoundError{Registry: r.name, Key: key}
		}
	}
	for key, value := range values {
		if err := r.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Delete drops a staged change. It fails if the key was never staged;
// committed values cannot be deleted.
func (r *Registry) Delete(key string) error {
	if _, staged := r.staged[key]; !staged {
		return &KeyNotFoundError{Registry: r.name, Key: key}
	}
	r.unstage(key)
	return nil
}

func (r *Registry) unstage(key string) {
	if _, staged := r.staged[key]; !staged {
		return
	}
	delete(r.staged, key)
	for i, staged := range r.stagedKeys {
		if staged == key {
			r.stagedKeys = append(r.stagedKeys[:i], r.stagedKeys[i+1:]...)
			break
		}
	}
}

// Dirty reports whether any change is staged.
func (r *Registry) Dirty() bool { return len(r.stagedKeys) > 0 }

// Changes returns a copy of the staged changes.
func (r *Registry) Changes() map[string]string {
	changes := make(map[string]string, len(r.staged))
	for key, value := range r.staged {
		changes[key] = value
	}
	return changes
}

// Write commits the staged changes to the device, one set command per
// key in staging order. A failing command aborts the remaining batch;
// already-applied writes are not rolled back. On full success the
// staged state is cleared and the committed state reloaded from the
// device. It returns false, issuing no command, when nothing is
// staged.
func (r *Registry) Write(ctx context.Context) (bool, error) {
	if len(r.stagedKeys) == 0 {
		return false, nil
	}
	r.logger.Info().Interface("changes", r.staged).Msg("writing changes")
	for _, key := range r.stagedKeys {
		command := fmt.Sprintf("set %s.%s %s", r.name, key, r.staged[key])
		if _, err := r.exec.Exec(ctx, command); err != nil {
			return false, err
		}
	}
	r.staged = nil
	r.stagedKeys = nil
	return true, r.load(ctx)
}

// Copy produces an independent registry with its own copy of the
// staged changes and a fresh load of committed state.
func (r *Registry) Copy(ctx context.Context) (*Registry, error) {
	copied, err := LoadRegistry(ctx, r.exec, r.name)
	if err != nil {
		return nil, err
	}
	for _, key := range r.stagedKeys {
		copied.stagedKeys = append(copied.stagedKeys, key)
	}
	if len(r.staged) > 0 {
		copied.staged = make(map[string]string, len(r.staged))
		for key, value := range r.staged {
			copied.staged[key] = value
		}
	}
	return copied, nil
}
