// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Disk is one physical or virtual disk as reported by the controller.
// Physical disks carry an enclosure id, virtual disks a layout.
type Disk struct {
	// Key is the full colon-delimited identifier used by raid commands.
	Key string
	// ID is the first component of the key (the disk name proper).
	ID         string
	Enclosure  string
	Controller string

	Name      string
	State     string
	Status    string
	MediaType string
	Size      string
	Layout    string

	// attributes the fixed fields above do not cover, lower-cased
	Extra map[string]string
}

// Physical reports whether the disk key carried enclosure information.
func (d Disk) Physical() bool { return d.Enclosure != "" }

// SizeValue returns the numeric size with the unit stripped.
func (d Disk) SizeValue() (float64, error) {
	fields := strings.Fields(d.Size)
	if len(fields) == 0 {
		return 0, &ParseError{What: "disk size", Detail: fmt.Sprintf("disk %s has no size", d.Key)}
	}
	size, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, &ParseError{What: "disk size", Detail: fmt.Sprintf("disk %s size %q", d.Key, d.Size)}
	}
	return size, nil
}

func (d *Disk) setAttribute(key, value string) {
	switch key {
	case "name":
		d.Name = value
	case "state":
		d.State = value
	case "status":
		d.Status = value
	case "mediatype":
		d.MediaType = value
	case "size":
		d.Size = value
	case "layout":
		d.Layout = value
	default:
		if d.Extra == nil {
			d.Extra = make(map[string]string)
		}
		d.Extra[key] = value
	}
}

// parseDiskList converts a raid disk listing to Disk records. A line
// without '=' opens a new record keyed by its colon-delimited
// identifier; the lines after it are "Key = Value" attribute rows.
func parseDiskList(output string, logger zerolog.Logger) ([]Disk, error) {
	fail := func(detail string) ([]Disk, error) {
		logger.Error().Msg("error parsing disks output")
		logger.Error().Str("content", output).Msg("content was")
		return nil, &ParseError{What: "disk listing", Detail: detail}
	}

	var disks []Disk
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, "=") {
			parts := strings.SplitN(line, ":", 3)
			if len(parts) < 2 {
				return fail(fmt.Sprintf("disk key %q has too few components", line))
			}
			disk := Disk{Key: line, ID: parts[0]}
			if len(parts) == 3 {
				// physical disks have enclosure information
				disk.Enclosure = parts[1]
				disk.Controller = parts[2]
			} else {
				disk.Controller = parts[1]
			}
			disks = append(disks, disk)
			continue
		}
		if len(disks) == 0 {
			return fail("attribute line before any disk key")
		}
		key, value, ok := splitAttributeRow(line)
		if !ok {
			return fail(fmt.Sprintf("malformed attribute row %q", line))
		}
		disks[len(disks)-1].setAttribute(strings.ToLower(key), value)
	}
	return disks, nil
}

// splitAttributeRow splits "Key = Value with spaces" into key and the
// remainder after the separator token.
func splitAttributeRow(line string) (key, value string, ok bool) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}
	key = line[:i]
	rest := strings.TrimLeftFunc(line[i:], unicode.IsSpace)
	j := strings.IndexFunc(rest, unicode.IsSpace)
	if j < 0 {
		return "", "", false
	}
	return key, strings.TrimLeftFunc(rest[j:], unicode.IsSpace), true
}

const (
	pdiskFields = "Name,State,Status,MediaType,Size"
	vdiskFields = "Name,State,Status,MediaType,Size,Layout"

	// disks whose unit-stripped sizes differ by less than this many
	// units share a bucket
	sizeBucketSpan = 10

	stateNonRaid = "Non-Raid"
	stateForeign = "Foreign"
)

// Profile names accepted by ApplyProfile.
const (
	ProfileDefault     = "default"
	ProfileNoData      = "nodata"
	ProfileDatabase    = "database"
	ProfilePassthrough = "passthrough"
)

// Storage orchestrates RAID configuration on the controller. Disk
// listings are cached per instance and invalidated after every
// locally-issued mutating command; out-of-band device changes are not
// detected.
type Storage struct {
	exec   Executor
	logger zerolog.Logger

	pdisks       []Disk
	pdisksLoaded bool
	vdisks       []Disk
	vdisksLoaded bool

	// virtual disk creation defaults, overridable before use
	ReadPolicy  string
	WritePolicy string
	StripeSize  string
}

func NewStorage(exec Executor) *Storage {
	return &Storage{
		exec:        exec,
		logger:      log.With().Str("component", "storage").Logger(),
		ReadPolicy:  "nra",
		WritePolicy: "wt",
		StripeSize:  "1M",
	}
}

// run executes a storage command; raid commands are prefixed.
func (s *Storage) run(ctx context.Context, command string) (string, error) {
	return s.exec.Exec(ctx, "raid "+command)
}

// InvalidateCache drops the memoized disk listings.
func (s *Storage) InvalidateCache() {
	s.pdisksLoaded = false
	s.pdisks = nil
	s.invalidateVDisks()
}

func (s *Storage) invalidateVDisks() {
	s.vdisksLoaded = false
	s.vdisks = nil
}

// PhysicalDisks lists the controller's physical disks, memoized.
func (s *Storage) PhysicalDisks(ctx context.Context) ([]Disk, error) {
	if !s.pdisksLoaded {
		output, err := s.run(ctx, "get pdisks -o -p "+pdiskFields)
		if err != nil {
			return nil, err
		}
		disks, err := parseDiskList(output, s.logger)
		if err != nil {
			return nil, err
		}
		s.pdisks = disks
		s.pdisksLoaded = true
	}
	return s.pdisks, nil
}

// VirtualDisks lists the configured virtual disks, memoized. A device
// reporting no virtual disks answers with an error-prefixed message;
// that is an empty list, not a failure.
func (s *Storage) VirtualDisks(ctx context.Context) ([]Disk, error) {
	if !s.vdisksLoaded {
		output, err := s.run(ctx, "get vdisks -o -p "+vdiskFields)
		if err != nil {
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				return nil, err
			}
			output = ""
		}
		disks, err := parseDiskList(output, s.logger)
		if err != nil {
			return nil, err
		}
		s.vdisks = disks
		s.vdisksLoaded = true
	}
	return s.vdisks, nil
}

// VirtualDisk returns the virtual disk with the given name, or nil if
// none matches.
func (s *Storage) VirtualDisk(ctx context.Context, name string) (*Disk, error) {
	vdisks, err := s.VirtualDisks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range vdisks {
		if vdisks[i].Name == name {
			return &vdisks[i], nil
		}
	}
	return nil, nil
}

// HasForeignDisks reports whether any physical disk carries a foreign
// configuration.
func (s *Storage) HasForeignDisks(ctx context.Context) (bool, error) {
	pdisks, err := s.PhysicalDisks(ctx)
	if err != nil {
		return false, err
	}
	for _, disk := range pdisks {
		if disk.State == stateForeign {
			return true, nil
		}
	}
	return false, nil
}

// GroupBySize buckets the physical disks by size, single pass in
// device order: a disk joins the first existing bucket whose anchor
// size is within the bucket span, otherwise it opens a new bucket
// keyed by its own truncated size. The first disk of a bucket
// establishes the anchor, so assignment is deliberately
// order-dependent.
func (s *Storage) GroupBySize(ctx context.Context) (map[int][]Disk, error) {
	pdisks, err := s.PhysicalDisks(ctx)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int][]Disk)
	var anchors []float64
	for _, disk := range pdisks {
		size, err := disk.SizeValue()
		if err != nil {
			s.logger.Error().Str("disk", disk.Key).Str("size", disk.Size).Msg("unparseable disk size")
			return nil, err
		}
		anchor := size
		for _, known := range anchors {
			if math.Abs(size-known) < sizeBucketSpan {
				anchor = known
				break
			}
		}
		if anchor == size {
			anchors = append(anchors, anchor)
		}
		buckets[int(anchor)] = append(buckets[int(anchor)], disk)
	}
	return buckets, nil
}

// SelectDisks returns the disks of the smallest or largest size
// bucket.
func (s *Storage) SelectDisks(ctx context.Context, method string) ([]Disk, error) {
	buckets, err := s.GroupBySize(ctx)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, nil
	}
	sizes := make([]int, 0, len(buckets))
	for size := range buckets {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	switch method {
	case "smallest":
		return buckets[sizes[0]], nil
	case "largest":
		return buckets[sizes[len(sizes)-1]], nil
	}
	return nil, fmt.Errorf("unknown disk selection method %q", method)
}

// ConvertToRAID converts a Non-Raid physical disk to raid mode.
func (s *Storage) ConvertToRAID(ctx context.Context, pdkey string) (string, error) {
	s.logger.Info().Str("pdkey", pdkey).Msg("converting Non-Raid disk")
	return s.run(ctx, "converttoraid:"+pdkey)
}

// CreateVirtualDisk registers a virtual disk creation job over the
// member disks, in the given order. Members still in Non-Raid state
// are converted first. The first member's controller is the command
// target.
func (s *Storage) CreateVirtualDisk(ctx context.Context, name, level string, disks []Disk) (string, error) {
	if len(disks) == 0 {
		return "", fmt.Errorf("virtual disk %q needs at least one member disk", name)
	}

	s.logger.Info().Str("name", name).Str("level", level).Msg("registering virtual disk creation job")
	for _, disk := range disks {
		s.logger.Info().
			Str("dkey", disk.Key).
			Str("mediatype", disk.MediaType).
			Str("size", disk.Size).
			Msg("member disk")
	}

	for _, disk := range disks {
		if disk.State == stateNonRaid {
			if _, err := s.ConvertToRAID(ctx, disk.Key); err != nil {
				return "", err
			}
		}
	}

	keys := make([]string, len(disks))
	for i, disk := range disks {
		keys[i] = disk.Key
	}

	s.invalidateVDisks()
	return s.run(ctx, fmt.Sprintf(
		"createvd:%s -name %s -rl %s -rp %s -wp %s -ss %s -pdkey:%s",
		disks[0].Controller, name, level,
		s.ReadPolicy, s.WritePolicy, s.StripeSize,
		strings.Join(keys, ","),
	))
}

// DeleteVirtualDisk removes a virtual disk.
func (s *Storage) DeleteVirtualDisk(ctx context.Context, vdkey string) (string, error) {
	s.invalidateVDisks()
	s.logger.Warn().Str("vdkey", vdkey).Msg("deleting vdisk")
	return s.run(ctx, "deletevd:"+vdkey)
}

// AssignHotspare dedicates a physical disk as hotspare of a virtual
// disk.
func (s *Storage) AssignHotspare(ctx context.Context, vdkey, pdkey string) (string, error) {
	s.logger.Info().Str("pdkey", pdkey).Str("vdkey", vdkey).Msg("assigning hotspare")
	return s.run(ctx, fmt.Sprintf("hotspare:%s -assign yes -type dhs -vdkey:%s", pdkey, vdkey))
}

// DestroyConfiguration wipes the entire controller configuration.
// Foreign configurations are cleared first in a single ignored-error
// attempt, then the controller is reset and the reset job awaited.
func (s *Storage) DestroyConfiguration(ctx context.Context, controller string) error {
	s.logger.Warn().Str("controller", controller).Msg("destroying entire controller configuration")
	foreign, err := s.HasForeignDisks(ctx)
	if err != nil {
		return err
	}
	if foreign {
		if _, err := s.exec.ExecRetry(ctx, "raid clearconfig:"+controller, 0, true); err != nil {
			return err
		}
	}
	if _, err := s.run(ctx, "resetconfig:"+controller); err != nil {
		return err
	}
	if _, err := s.exec.RunJobs(ctx, controller, true, true); err != nil {
		return err
	}
	s.InvalidateCache()
	s.logger.Info().Msg("virtual disks cleaning is done")
	return nil
}

// ApplyProfile builds the named deterministic disk layout. The layout
// is validated against the discovered disks before any command is
// issued; an unsatisfiable layout fails with ProfileError.
func (s *Storage) ApplyProfile(ctx context.Context, profile string) error {
	switch profile {
	case ProfileDefault:
		return s.profileDefault(ctx)
	case ProfileNoData:
		return s.profileNoData(ctx)
	case ProfileDatabase:
		return s.profileDatabase(ctx)
	case ProfilePassthrough:
		return s.profilePassthrough(ctx)
	}
	return &ProfileError{Profile: profile, Reason: "unknown profile"}
}

// smallestLargest resolves the two size buckets most profiles allocate
// from and validates their minimum populations.
func (s *Storage) smallestLargest(ctx context.Context, profile string, minSmallest, minLargest int) (smallest, largest []Disk, err error) {
	smallest, err = s.SelectDisks(ctx, "smallest")
	if err != nil {
		return nil, nil, err
	}
	largest, err = s.SelectDisks(ctx, "largest")
	if err != nil {
		return nil, nil, err
	}
	if len(smallest) < minSmallest {
		return nil, nil, &ProfileError{Profile: profile, Reason: fmt.Sprintf(
			"needs %d disks in the smallest size group, found %d", minSmallest, len(smallest))}
	}
	if len(largest) < minLargest {
		return nil, nil, &ProfileError{Profile: profile, Reason: fmt.Sprintf(
			"needs %d disks in the largest size group, found %d", minLargest, len(largest))}
	}
	if minLargest > 0 && smallest[0].Key == largest[0].Key {
		return nil, nil, &ProfileError{Profile: profile, Reason: "needs two distinct disk size groups"}
	}
	return smallest, largest, nil
}

// profileDefault builds:
//
//	system - RAID1 - 2 smallest disks
//	data   - RAID5 - all largest disks but one, 1 dedicated hotspare
func (s *Storage) profileDefault(ctx context.Context) error {
	smallest, largest, err := s.smallestLargest(ctx, ProfileDefault, 2, 2)
	if err != nil {
		return err
	}
	system := smallest[:2]
	data := largest[:len(largest)-1]
	hotspare := largest[len(largest)-1]
	controller := system[0].Controller

	if _, err := s.CreateVirtualDisk(ctx, "system", "r1", system); err != nil {
		return err
	}
	if _, err := s.CreateVirtualDisk(ctx, "data", "r5", data); err != nil {
		return err
	}
	if _, err := s.exec.RunJobs(ctx, controller, true, true); err != nil {
		return err
	}

	s.invalidateVDisks()
	return s.assignDataHotspare(ctx, controller, hotspare)
}

// assignDataHotspare attaches a hotspare to the freshly created data
// virtual disk and queues the resulting job.
func (s *Storage) assignDataHotspare(ctx context.Context, controller string, hotspare Disk) error {
	dataVD, err := s.VirtualDisk(ctx, "data")
	if err != nil {
		return err
	}
	if dataVD == nil {
		return fmt.Errorf("virtual disk %q not found after creation", "data")
	}
	if _, err := s.AssignHotspare(ctx, dataVD.Key, hotspare.Key); err != nil {
		return err
	}
	_, err = s.exec.RunJobs(ctx, controller, true, false)
	return err
}

// profileNoData builds:
//
//	system - RAID1 - 2 smallest disks
func (s *Storage) profileNoData(ctx context.Context) error {
	smallest, _, err := s.smallestLargest(ctx, ProfileNoData, 2, 0)
	if err != nil {
		return err
	}
	system := smallest[:2]
	controller := system[0].Controller

	if _, err := s.CreateVirtualDisk(ctx, "system", "r1", system); err != nil {
		return err
	}
	if _, err := s.exec.RunJobs(ctx, controller, true, true); err != nil {
		return err
	}
	s.invalidateVDisks()
	return nil
}

// profileDatabase builds:
//
//	system  - RAID1 - 2 smallest disks
//	logtemp - RAID1 - first 2 largest disks
//	data    - RAID5 - remaining largest disks but one, 1 dedicated hotspare
func (s *Storage) profileDatabase(ctx context.Context) error {
	smallest, largest, err := s.smallestLargest(ctx, ProfileDatabase, 2, 4)
	if err != nil {
		return err
	}
	system := smallest[:2]
	logtemp := largest[:2]
	data := largest[2 : len(largest)-1]
	hotspare := largest[len(largest)-1]
	controller := system[0].Controller

	if _, err := s.CreateVirtualDisk(ctx, "system", "r1", system); err != nil {
		return err
	}
	if _, err := s.CreateVirtualDisk(ctx, "logtemp", "r1", logtemp); err != nil {
		return err
	}
	if _, err := s.CreateVirtualDisk(ctx, "data", "r5", data); err != nil {
		return err
	}
	if _, err := s.exec.RunJobs(ctx, controller, true, true); err != nil {
		return err
	}

	s.invalidateVDisks()
	return s.assignDataHotspare(ctx, controller, hotspare)
}

// profilePassthrough exposes every disk as its own RAID0 volume after
// a 2-disk RAID1 system volume, emulating the JBOD mode the controller
// does not offer. Listing order decides the system members.
func (s *Storage) profilePassthrough(ctx context.Context) error {
	pdisks, err := s.PhysicalDisks(ctx)
	if err != nil {
		return err
	}
	if len(pdisks) < 2 {
		return &ProfileError{Profile: ProfilePassthrough, Reason: fmt.Sprintf(
			"needs 2 disks for the system volume, found %d", len(pdisks))}
	}
	controller := pdisks[0].Controller

	if _, err := s.CreateVirtualDisk(ctx, "system", "r1", pdisks[:2]); err != nil {
		return err
	}
	for _, pdisk := range pdisks[2:] {
		if _, err := s.CreateVirtualDisk(ctx, pdisk.ID, "r0", []Disk{pdisk}); err != nil {
			return err
		}
	}
	if _, err := s.exec.RunJobs(ctx, controller, true, true); err != nil {
		return err
	}
	s.invalidateVDisks()
	return nil
}
