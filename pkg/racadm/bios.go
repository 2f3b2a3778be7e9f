// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// biosSetupUnit is the job unit that applies staged BIOS registry
// changes on next boot.
const biosSetupUnit = "bios.setup.1-1"

// Bios groups the BIOS-related configuration registries behind one
// commit barrier: staged changes across the group are written together
// and applied by a single setup job.
type Bios struct {
	exec   Executor
	logger zerolog.Logger

	IDRACIPv4          *Registry
	BootSettings       *Registry
	SysProfileSettings *Registry
}

// NewBios loads the BIOS registry group from the device.
func NewBios(ctx context.Context, exec Executor) (*Bios, error) {
	bios := &Bios{
		exec:   exec,
		logger: log.With().Str("component", "bios").Logger(),
	}
	var err error
	if bios.IDRACIPv4, err = LoadRegistry(ctx, exec, "idrac.ipv4"); err != nil {
		return nil, err
	}
	if bios.BootSettings, err = LoadRegistry(ctx, exec, "BIOS.BiosBootSettings"); err != nil {
		return nil, err
	}
	if bios.SysProfileSettings, err = LoadRegistry(ctx, exec, "BIOS.SysProfileSettings"); err != nil {
		return nil, err
	}
	return bios, nil
}

// Registries returns the group members in commit order.
func (b *Bios) Registries() []*Registry {
	return []*Registry{b.IDRACIPv4, b.BootSettings, b.SysProfileSettings}
}

// Changes aggregates all staged changes across the group, keyed by
// fully-qualified registry key.
func (b *Bios) Changes() map[string]string {
	changes := make(map[string]string)
	for _, registry := range b.Registries() {
		for key, value := range registry.Changes() {
			changes[registry.Name()+"."+key] = value
		}
	}
	return changes
}

// Commit writes every dirty registry in the group and, if anything
// changed, queues the BIOS setup job. It reports whether a job was
// queued.
func (b *Bios) Commit(ctx context.Context) (bool, error) {
	changed := false
	for _, registry := range b.Registries() {
		wrote, err := registry.Write(ctx)
		if err != nil {
			return false, err
		}
		changed = changed || wrote
	}
	if !changed {
		return false, nil
	}
	b.logger.Info().Msg("queueing bios setup job")
	_, err := b.exec.RunJobs(ctx, biosSetupUnit, true, false)
	return true, err
}
