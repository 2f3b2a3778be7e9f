// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	instanceIDPrefix = "[InstanceID: "
	blockSeparator   = "-------"
)

// Instance is one hwinventory block: an instance id plus its
// attributes in device-reported order.
type Instance struct {
	ID string

	keys  []string
	attrs map[string]string
}

// Get returns one attribute value.
func (i *Instance) Get(key string) (string, bool) {
	value, ok := i.attrs[key]
	return value, ok
}

// GetDefault returns one attribute value, or the fallback when the
// device did not report the attribute.
func (i *Instance) GetDefault(key, fallback string) string {
	if value, ok := i.attrs[key]; ok {
		return value
	}
	return fallback
}

// Keys returns the attribute keys in device-reported order.
func (i *Instance) Keys() []string {
	keys := make([]string, len(i.keys))
	copy(keys, i.keys)
	return keys
}

// DeviceType returns the instance's reported device type.
func (i *Instance) DeviceType() string { return i.attrs["Device Type"] }

func (i *Instance) set(key, value string) {
	if _, known := i.attrs[key]; !known {
		i.keys = append(i.keys, key)
	}
	i.attrs[key] = value
}

// Inventory reads and caches the hardware inventory. The parse is
// computed once per instance lifetime; Reset forces a re-fetch on the
// next access.
type Inventory struct {
	exec   Executor
	logger zerolog.Logger

	order     []string
	instances map[string]*Instance
}

func NewInventory(exec Executor) *Inventory {
	return &Inventory{
		exec:   exec,
		logger: log.With().Str("component", "inventory").Logger(),
	}
}

// Reset drops the cached inventory.
func (inv *Inventory) Reset() {
	inv.order = nil
	inv.instances = nil
}

// Load fetches and parses the hardware inventory unless already
// cached. Blocks are delimited by blank lines or dashed separators; a
// block is only committed once its terminating separator is observed,
// so a trailing block in truncated output is dropped rather than
// reported half-parsed.
func (inv *Inventory) Load(ctx context.Context) error {
	if inv.instances != nil {
		return nil
	}

	output, err := inv.exec.ExecRetry(ctx, "hwinventory", defaultRetry, false)
	if err != nil {
		return err
	}

	instances := make(map[string]*Instance)
	var order []string
	var current *Instance
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, blockSeparator) {
			if current != nil && len(current.keys) > 0 {
				if _, seen := instances[current.ID]; !seen {
					order = append(order, current.ID)
				}
				instances[current.ID] = current
			}
			current = nil
			continue
		}

		if strings.HasPrefix(line, instanceIDPrefix) {
			id := strings.TrimSuffix(line[len(instanceIDPrefix):], "]")
			current = &Instance{ID: id, attrs: make(map[string]string)}
			continue
		}

		if current == nil {
			inv.logger.Error().Str("content", output).Msg("attribute line outside instance block")
			return &ParseError{What: "hwinventory output", Detail: fmt.Sprintf("attribute line outside block: %q", line)}
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			inv.logger.Error().Str("content", output).Msg("malformed inventory attribute line")
			return &ParseError{What: "hwinventory output", Detail: fmt.Sprintf("line without '=': %q", line)}
		}
		current.set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	inv.instances = instances
	inv.order = order
	return nil
}

// Instances returns all inventory blocks in device-reported order.
func (inv *Inventory) Instances(ctx context.Context) ([]*Instance, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	instances := make([]*Instance, 0, len(inv.order))
	for _, id := range inv.order {
		instances = append(instances, inv.instances[id])
	}
	return instances, nil
}

// Instance returns one block by instance id.
func (inv *Inventory) Instance(ctx context.Context, id string) (*Instance, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	return inv.instances[id], nil
}

// DeviceType returns all instances of one device type, in order.
func (inv *Inventory) DeviceType(ctx context.Context, deviceType string) ([]*Instance, error) {
	instances, err := inv.Instances(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*Instance
	for _, instance := range instances {
		if instance.DeviceType() == deviceType {
			matches = append(matches, instance)
		}
	}
	return matches, nil
}

// System returns the system instance.
func (inv *Inventory) System(ctx context.Context) (*Instance, error) {
	systems, err := inv.DeviceType(ctx, "System")
	if err != nil {
		return nil, err
	}
	if len(systems) == 0 {
		return nil, &ParseError{What: "hwinventory output", Detail: "no System instance"}
	}
	return systems[0], nil
}

func (inv *Inventory) PSUs(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "PowerSupply")
}

func (inv *Inventory) CPUs(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "CPU")
}

func (inv *Inventory) Memory(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "Memory")
}

func (inv *Inventory) NICs(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "NIC")
}

func (inv *Inventory) Enclosures(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "Enclosure")
}

func (inv *Inventory) Disks(ctx context.Context) ([]*Instance, error) {
	return inv.DeviceType(ctx, "PhysicalDisk")
}

// RAIDControllers returns the PCI devices backing RAID controllers.
func (inv *Inventory) RAIDControllers(ctx context.Context) ([]*Instance, error) {
	devices, err := inv.DeviceType(ctx, "PCIDevice")
	if err != nil {
		return nil, err
	}
	var controllers []*Instance
	for _, device := range devices {
		if strings.HasPrefix(device.ID, "RAID.") {
			controllers = append(controllers, device)
		}
	}
	return controllers, nil
}

// EnclosureDisks returns the physical disks attached to an enclosure.
func (inv *Inventory) EnclosureDisks(ctx context.Context, enclosureID string) ([]*Instance, error) {
	disks, err := inv.Disks(ctx)
	if err != nil {
		return nil, err
	}
	var attached []*Instance
	for _, disk := range disks {
		if strings.HasSuffix(disk.ID, enclosureID) {
			attached = append(attached, disk)
		}
	}
	return attached, nil
}

// Summary renders a human-readable hardware report.
func (inv *Inventory) Summary(ctx context.Context, details bool) (string, error) {
	system, err := inv.System(ctx)
	if err != nil {
		return "", err
	}
	psus, err := inv.PSUs(ctx)
	if err != nil {
		return "", err
	}

	var report strings.Builder
	fmt.Fprintf(&report, "Model: %s (%s)\n",
		system.GetDefault("Model", "n/a"), system.GetDefault("ChassisSystemHeight", "n/a"))
	fmt.Fprintf(&report, "Serial: %s\n", system.GetDefault("ServiceTag", "n/a"))
	fmt.Fprintf(&report, "Hostname: %s\n", system.GetDefault("HostName", "n/a"))
	fmt.Fprintf(&report, "CPU slots: %s / %s\n",
		system.GetDefault("PopulatedCPUSockets", "?"), system.GetDefault("MaxCPUSockets", "?"))
	fmt.Fprintf(&report, "Memory slots: %s / %s\n",
		system.GetDefault("PopulatedDIMMSlots", "?"), system.GetDefault("MaxDIMMSlots", "?"))
	fmt.Fprintf(&report, "Installed memory: %s / %s\n",
		system.GetDefault("SysMemTotalSize", "?"), system.GetDefault("SysMemMaxCapacitySize", "?"))
	fmt.Fprintf(&report, "Power supply: %d psu(s)", len(psus))

	if !details {
		return report.String(), nil
	}

	cpus, err := inv.CPUs(ctx)
	if err != nil {
		return "", err
	}
	report.WriteString("\nCPUs specs:")
	for _, cpu := range cpus {
		fmt.Fprintf(&report, "\n    %s Model: %s (%sc/%st)",
			cpu.GetDefault("DeviceDescription", cpu.ID),
			cpu.GetDefault("Model", "n/a"),
			cpu.GetDefault("NumberOfEnabledCores", "?"),
			cpu.GetDefault("NumberOfEnabledThreads", "?"))
	}

	memory, err := inv.Memory(ctx)
	if err != nil {
		return "", err
	}
	report.WriteString("\nMemory specs:")
	for _, dimm := range memory {
		fmt.Fprintf(&report, "\n    %s: %s %s @%s %s",
			dimm.GetDefault("DeviceDescription", dimm.ID),
			dimm.GetDefault("Size", "?"),
			dimm.GetDefault("Model", "n/a"),
			dimm.GetDefault("Speed", "?"),
			dimm.GetDefault("Rank", "?"))
	}

	nics, err := inv.NICs(ctx)
	if err != nil {
		return "", err
	}
	report.WriteString("\nNICs specs:")
	for _, nic := range nics {
		fmt.Fprintf(&report, "\n    %s", nic.GetDefault("ProductName", nic.ID))
	}

	controllers, err := inv.RAIDControllers(ctx)
	if err != nil {
		return "", err
	}
	report.WriteString("\nRAID ctls:")
	for _, controller := range controllers {
		fmt.Fprintf(&report, "\n    %s %s",
			controller.GetDefault("Description", "n/a"),
			controller.GetDefault("DeviceDescription", controller.ID))
	}

	enclosures, err := inv.Enclosures(ctx)
	if err != nil {
		return "", err
	}
	report.WriteString("\nEnclosures:")
	for _, enclosure := range enclosures {
		fmt.Fprintf(&report, "\n    %s - %s %s",
			enclosure.GetDefault("ServiceTag", "n/a"),
			enclosure.GetDefault("ProductName", "n/a"),
			enclosure.GetDefault("DeviceDescription", enclosure.ID))
		report.WriteString("\n    Disks:")
		disks, err := inv.EnclosureDisks(ctx, enclosure.ID)
		if err != nil {
			return "", err
		}
		for _, disk := range disks {
			fmt.Fprintf(&report, "\n        %s %s %s (%s %s) - %d GB",
				disk.GetDefault("DriveFormFactor", "?"),
				disk.GetDefault("MediaType", "?"),
				disk.GetDefault("SerialNumber", "n/a"),
				disk.GetDefault("Manufacturer", "?"),
				disk.GetDefault("Model", "?"),
				sizeInGB(disk.GetDefault("SizeInBytes", "0")))
		}
	}

	return report.String(), nil
}

func sizeInGB(sizeInBytes string) int64 {
	fields := strings.Fields(sizeInBytes)
	if len(fields) == 0 {
		return 0
	}
	bytes, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return bytes / (1 << 30)
}
