// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "RAID controller commands",
}

var storagePdisksCmd = &cobra.Command{
	Use:   "pdisks",
	Short: "List physical disks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		disks, err := client.Storage().PhysicalDisks(cmd.Context())
		if err != nil {
			return err
		}
		printDisks(disks)
		return nil
	},
}

var storageVdisksCmd = &cobra.Command{
	Use:   "vdisks",
	Short: "List virtual disks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		disks, err := client.Storage().VirtualDisks(cmd.Context())
		if err != nil {
			return err
		}
		if len(disks) == 0 {
			fmt.Println("no virtual disks configured")
			return nil
		}
		printDisks(disks)
		return nil
	},
}

var storageApplyProfileCmd = &cobra.Command{
	Use:   "apply-profile [default|nodata|database|passthrough]",
	Short: "Build a standard storage layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		return client.Storage().ApplyProfile(cmd.Context(), args[0])
	},
}

var storageDestroyCmd = &cobra.Command{
	Use:   "destroy <controller>",
	Short: "Destroy the entire controller configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		return client.Storage().DestroyConfiguration(cmd.Context(), args[0])
	},
}

func printDisks(disks []racadm.Disk) {
	for _, disk := range disks {
		fmt.Println(disk.Key)
		fmt.Printf("    Name: %s State: %s Status: %s Media: %s Size: %s",
			disk.Name, disk.State, disk.Status, disk.MediaType, disk.Size)
		if disk.Layout != "" {
			fmt.Printf(" Layout: %s", disk.Layout)
		}
		fmt.Println()
	}
}

func init() {
	storageCmd.AddCommand(storagePdisksCmd)
	storageCmd.AddCommand(storageVdisksCmd)
	storageCmd.AddCommand(storageApplyProfileCmd)
	storageCmd.AddCommand(storageDestroyCmd)
}
