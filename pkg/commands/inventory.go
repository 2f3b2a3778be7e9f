// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inventoryDetails bool

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Hardware inventory commands",
}

var inventoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a hardware summary of the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		summary, err := client.Inventory().Summary(cmd.Context(), inventoryDetails)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	},
}

func init() {
	inventoryShowCmd.Flags().BoolVar(&inventoryDetails, "details", false, "Include per-component details")
	inventoryCmd.AddCommand(inventoryShowCmd)
}
