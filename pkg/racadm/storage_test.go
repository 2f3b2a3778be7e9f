// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testController = "RAID.Integrated.1-1"

func pdiskKey(bay int) string {
	return fmt.Sprintf("Disk.Bay.%d:Enclosure.Internal.0-1:%s", bay, testController)
}

func pdiskBlock(bay int, state, size string) string {
	return fmt.Sprintf(`%s
Name = Physical Disk 0:1:%d
State = %s
Status = Ok
MediaType = HDD
Size = %s
`, pdiskKey(bay), bay, state, size)
}

func pdiskListing(blocks ...string) string {
	return strings.Join(blocks, "")
}

func TestParseDiskListPhysical(t *testing.T) {
	listing := `Disk.Bay.0:Enclosure.Internal.0-1:RAID.Integrated.1-1
Name = Physical Disk 0:1:0
State = Online
Status = Ok
MediaType = SSD
Size = 446.62 GB
FailurePredicted = No
Disk.Bay.1:Enclosure.Internal.0-1:RAID.Integrated.1-1
Name = Physical Disk 0:1:1
State = Non-Raid
Status = Ok
MediaType = HDD
Size = 1862.50 GB`

	disks, err := parseDiskList(listing, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, disks, 2)

	first := disks[0]
	assert.Equal(t, "Disk.Bay.0:Enclosure.Internal.0-1:RAID.Integrated.1-1", first.Key)
	assert.Equal(t, "Disk.Bay.0", first.ID)
	assert.Equal(t, "Enclosure.Internal.0-1", first.Enclosure)
	assert.Equal(t, testController, first.Controller)
	assert.Equal(t, "Physical Disk 0:1:0", first.Name)
	assert.Equal(t, "Online", first.State)
	assert.Equal(t, "SSD", first.MediaType)
	assert.Equal(t, "446.62 GB", first.Size)
	assert.True(t, first.Physical())
	assert.Equal(t, "No", first.Extra["failurepredicted"])

	size, err := first.SizeValue()
	require.NoError(t, err)
	assert.InDelta(t, 446.62, size, 0.001)

	assert.Equal(t, "Non-Raid", disks[1].State)
}

func TestParseDiskListVirtual(t *testing.T) {
	listing := `Disk.Virtual.0:RAID.Integrated.1-1
Name = system
State = Online
Status = Ok
MediaType = HDD
Size = 446.62 GB
Layout = Raid-1`

	disks, err := parseDiskList(listing, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, disks, 1)

	vd := disks[0]
	assert.Equal(t, "Disk.Virtual.0", vd.ID)
	assert.Empty(t, vd.Enclosure)
	assert.Equal(t, testController, vd.Controller)
	assert.Equal(t, "Raid-1", vd.Layout)
	assert.False(t, vd.Physical())
}

func TestParseDiskListMalformed(t *testing.T) {
	cases := map[string]string{
		"attribute before key": "Name = orphan attribute",
		"single component key": "justadiskname",
		"truncated attribute":  "Disk.Virtual.0:RAID.Integrated.1-1\nName =",
	}
	for name, listing := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseDiskList(listing, zerolog.Nop())
			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestGroupBySizeAnchorsOnFirstDisk(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Online", "105.00 GB"),
		pdiskBlock(2, "Online", "500.00 GB"),
		pdiskBlock(3, "Online", "509.00 GB"),
		pdiskBlock(4, "Online", "512.00 GB"),
	))
	storage := NewStorage(exec)

	buckets, err := storage.GroupBySize(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	// 105 is within 10 of the 100 anchor, 509 within 10 of 500, but
	// 512 is not and opens its own bucket
	assert.Len(t, buckets[100], 2)
	assert.Len(t, buckets[500], 2)
	assert.Len(t, buckets[512], 1)
}

func TestSelectDisks(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "500.00 GB"),
		pdiskBlock(1, "Online", "100.00 GB"),
		pdiskBlock(2, "Online", "505.00 GB"),
	))
	storage := NewStorage(exec)

	smallest, err := storage.SelectDisks(context.Background(), "smallest")
	require.NoError(t, err)
	require.Len(t, smallest, 1)
	assert.Equal(t, pdiskKey(1), smallest[0].Key)

	largest, err := storage.SelectDisks(context.Background(), "largest")
	require.NoError(t, err)
	require.Len(t, largest, 2)

	_, err = storage.SelectDisks(context.Background(), "median")
	assert.Error(t, err)
}

func TestPhysicalDisksMemoized(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(pdiskBlock(0, "Online", "100.00 GB")))
	storage := NewStorage(exec)

	_, err := storage.PhysicalDisks(context.Background())
	require.NoError(t, err)
	_, err = storage.PhysicalDisks(context.Background())
	require.NoError(t, err)
	assert.Len(t, exec.commandsWithPrefix("raid get pdisks"), 1)

	storage.InvalidateCache()
	_, err = storage.PhysicalDisks(context.Background())
	require.NoError(t, err)
	assert.Len(t, exec.commandsWithPrefix("raid get pdisks"), 2)
}

func TestVirtualDisksEmptyWhenDeviceReportsNone(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.onError("raid get vdisks", &CommandError{
		Command: "raid get vdisks",
		Output:  "ERROR: STOR0103 No virtual disks are displayed",
	})
	storage := NewStorage(exec)

	vdisks, err := storage.VirtualDisks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vdisks)
}

func TestVirtualDiskByName(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get vdisks", `Disk.Virtual.0:RAID.Integrated.1-1
Name = system
State = Online
Status = Ok
MediaType = HDD
Size = 100.00 GB
Layout = Raid-1`)
	storage := NewStorage(exec)

	vd, err := storage.VirtualDisk(context.Background(), "system")
	require.NoError(t, err)
	require.NotNil(t, vd)
	assert.Equal(t, "Disk.Virtual.0:RAID.Integrated.1-1", vd.Key)

	missing, err := storage.VirtualDisk(context.Background(), "data")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateVirtualDiskConvertsNonRaidMembers(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid converttoraid:", "ok")
	exec.on("raid createvd:", "ok")
	storage := NewStorage(exec)

	disks, err := parseDiskList(pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Non-Raid", "100.00 GB"),
	), zerolog.Nop())
	require.NoError(t, err)

	_, err = storage.CreateVirtualDisk(context.Background(), "system", "r1", disks)
	require.NoError(t, err)

	assert.Equal(t, []string{"raid converttoraid:" + pdiskKey(1)}, exec.commandsWithPrefix("raid converttoraid:"))
	assert.Equal(t, []string{fmt.Sprintf(
		"raid createvd:%s -name system -rl r1 -rp nra -wp wt -ss 1M -pdkey:%s,%s",
		testController, pdiskKey(0), pdiskKey(1),
	)}, exec.commandsWithPrefix("raid createvd:"))
}

func TestCreateVirtualDiskNeedsMembers(t *testing.T) {
	storage := NewStorage(newFakeExecutor(t))
	_, err := storage.CreateVirtualDisk(context.Background(), "system", "r1", nil)
	assert.Error(t, err)
}

func TestApplyProfileDefault(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Online", "100.00 GB"),
		pdiskBlock(2, "Online", "500.00 GB"),
		pdiskBlock(3, "Online", "500.00 GB"),
		pdiskBlock(4, "Online", "500.00 GB"),
	))
	exec.on("raid createvd:", "ok")
	exec.on("raid hotspare:", "ok")
	exec.on("raid get vdisks", `Disk.Virtual.0:RAID.Integrated.1-1
Name = system
State = Online
Status = Ok
MediaType = HDD
Size = 100.00 GB
Layout = Raid-1
Disk.Virtual.1:RAID.Integrated.1-1
Name = data
State = Online
Status = Ok
MediaType = HDD
Size = 1000.00 GB
Layout = Raid-5`)
	storage := NewStorage(exec)

	require.NoError(t, storage.ApplyProfile(context.Background(), ProfileDefault))

	// system takes the two smallest disks, data all largest but one,
	// the last largest disk becomes the dedicated hotspare
	assert.Equal(t, []string{
		fmt.Sprintf("raid createvd:%s -name system -rl r1 -rp nra -wp wt -ss 1M -pdkey:%s,%s",
			testController, pdiskKey(0), pdiskKey(1)),
		fmt.Sprintf("raid createvd:%s -name data -rl r5 -rp nra -wp wt -ss 1M -pdkey:%s,%s",
			testController, pdiskKey(2), pdiskKey(3)),
	}, exec.commandsWithPrefix("raid createvd:"))

	assert.Equal(t, []string{fmt.Sprintf(
		"raid hotspare:%s -assign yes -type dhs -vdkey:Disk.Virtual.1:%s",
		pdiskKey(4), testController,
	)}, exec.commandsWithPrefix("raid hotspare:"))

	assert.Equal(t, []jobRun{
		{unit: testController, now: true, wait: true},
		{unit: testController, now: true, wait: false},
	}, exec.jobRuns)
}

func TestApplyProfileDatabase(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Online", "100.00 GB"),
		pdiskBlock(2, "Online", "500.00 GB"),
		pdiskBlock(3, "Online", "500.00 GB"),
		pdiskBlock(4, "Online", "500.00 GB"),
		pdiskBlock(5, "Online", "500.00 GB"),
		pdiskBlock(6, "Online", "500.00 GB"),
	))
	exec.on("raid createvd:", "ok")
	exec.on("raid hotspare:", "ok")
	exec.on("raid get vdisks", `Disk.Virtual.2:RAID.Integrated.1-1
Name = data
State = Online
Status = Ok
MediaType = HDD
Size = 1000.00 GB
Layout = Raid-5`)
	storage := NewStorage(exec)

	require.NoError(t, storage.ApplyProfile(context.Background(), ProfileDatabase))

	created := exec.commandsWithPrefix("raid createvd:")
	require.Len(t, created, 3)
	assert.Contains(t, created[0], "-name system -rl r1")
	assert.Contains(t, created[1], "-name logtemp -rl r1")
	assert.Contains(t, created[1], fmt.Sprintf("-pdkey:%s,%s", pdiskKey(2), pdiskKey(3)))
	assert.Contains(t, created[2], "-name data -rl r5")
	assert.Contains(t, created[2], fmt.Sprintf("-pdkey:%s,%s", pdiskKey(4), pdiskKey(5)))
}

func TestApplyProfilePassthrough(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Online", "100.00 GB"),
		pdiskBlock(2, "Online", "500.00 GB"),
	))
	exec.on("raid createvd:", "ok")
	storage := NewStorage(exec)

	require.NoError(t, storage.ApplyProfile(context.Background(), ProfilePassthrough))

	created := exec.commandsWithPrefix("raid createvd:")
	require.Len(t, created, 2)
	assert.Contains(t, created[0], "-name system -rl r1")
	// each remaining disk becomes its own raid0 volume named after it
	assert.Contains(t, created[1], "-name Disk.Bay.2 -rl r0")
	assert.Contains(t, created[1], "-pdkey:"+pdiskKey(2))
}

func TestApplyProfileValidatesBeforeCommands(t *testing.T) {
	singleGroup := pdiskListing(
		pdiskBlock(0, "Online", "500.00 GB"),
		pdiskBlock(1, "Online", "500.00 GB"),
		pdiskBlock(2, "Online", "500.00 GB"),
		pdiskBlock(3, "Online", "500.00 GB"),
	)
	cases := map[string]struct {
		listing string
		profile string
	}{
		"default needs two size groups": {listing: singleGroup, profile: ProfileDefault},
		"default needs two largest": {
			listing: pdiskListing(
				pdiskBlock(0, "Online", "100.00 GB"),
				pdiskBlock(1, "Online", "100.00 GB"),
				pdiskBlock(2, "Online", "500.00 GB"),
			),
			profile: ProfileDefault,
		},
		"database needs four largest": {
			listing: pdiskListing(
				pdiskBlock(0, "Online", "100.00 GB"),
				pdiskBlock(1, "Online", "100.00 GB"),
				pdiskBlock(2, "Online", "500.00 GB"),
				pdiskBlock(3, "Online", "500.00 GB"),
				pdiskBlock(4, "Online", "500.00 GB"),
			),
			profile: ProfileDatabase,
		},
		"passthrough needs two disks": {
			listing: pdiskListing(pdiskBlock(0, "Online", "100.00 GB")),
			profile: ProfilePassthrough,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			exec := newFakeExecutor(t)
			exec.on("raid get pdisks", tc.listing)
			storage := NewStorage(exec)

			err := storage.ApplyProfile(context.Background(), tc.profile)
			var profileErr *ProfileError
			require.ErrorAs(t, err, &profileErr)
			assert.Equal(t, tc.profile, profileErr.Profile)
			// validation failed before any mutating command
			assert.Empty(t, exec.commandsWithPrefix("raid createvd:"))
		})
	}
}

func TestApplyProfileUnknown(t *testing.T) {
	storage := NewStorage(newFakeExecutor(t))
	err := storage.ApplyProfile(context.Background(), "fancy")
	var profileErr *ProfileError
	assert.ErrorAs(t, err, &profileErr)
}

func TestDestroyConfigurationClearsForeignFirst(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(
		pdiskBlock(0, "Online", "100.00 GB"),
		pdiskBlock(1, "Foreign", "100.00 GB"),
	))
	exec.on("raid clearconfig:", "ERROR: STOR0110 no foreign configuration")
	exec.on("raid resetconfig:", "ok")
	storage := NewStorage(exec)

	require.NoError(t, storage.DestroyConfiguration(context.Background(), testController))

	// the foreign wipe is a single attempt with errors ignored
	assert.Equal(t, []retryCall{{
		command:      "raid clearconfig:" + testController,
		retry:        0,
		ignoreErrors: true,
	}}, exec.retryCalls)
	assert.Len(t, exec.commandsWithPrefix("raid resetconfig:"), 1)
	assert.Equal(t, []jobRun{{unit: testController, now: true, wait: true}}, exec.jobRuns)

	// the cache is dropped, the next listing hits the device again
	_, err := storage.PhysicalDisks(context.Background())
	require.NoError(t, err)
	assert.Len(t, exec.commandsWithPrefix("raid get pdisks"), 2)
}

func TestDestroyConfigurationSkipsClearWithoutForeign(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.on("raid get pdisks", pdiskListing(pdiskBlock(0, "Online", "100.00 GB")))
	exec.on("raid resetconfig:", "ok")
	storage := NewStorage(exec)

	require.NoError(t, storage.DestroyConfiguration(context.Background(), testController))
	assert.Empty(t, exec.retryCalls)
}
