// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serverActionCmd = &cobra.Command{
	Use:   "serveraction [powerup|powerdown|powercycle|hardreset|graceshutdown]",
	Short: "Issue a server power action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		output, err := client.ServerAction(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if output != "" {
			fmt.Println(output)
		}
		return nil
	},
}
