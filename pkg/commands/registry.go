// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Configuration registry commands",
}

var registryGetCmd = &cobra.Command{
	Use:   "get <registry>",
	Short: "Dump a configuration registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		registry, err := racadm.LoadRegistry(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		for _, key := range registry.Keys() {
			value, err := registry.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", key, value)
		}
		return nil
	},
}

var registrySetCmd = &cobra.Command{
	Use:   "set <registry> <key>=<value>...",
	Short: "Stage and commit registry changes",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make(map[string]string, len(args)-1)
		for _, pair := range args[1:] {
			key, value, found := strings.Cut(pair, "=")
			if !found {
				return fmt.Errorf("expected <key>=<value>, got %q", pair)
			}
			values[key] = value
		}

		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		registry, err := racadm.LoadRegistry(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if err := registry.Update(values); err != nil {
			return err
		}
		wrote, err := registry.Write(cmd.Context())
		if err != nil {
			return err
		}
		if !wrote {
			fmt.Println("nothing to change")
		}
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryGetCmd)
	registryCmd.AddCommand(registrySetCmd)
}
