// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/draco/pkg/racadm"
)

var (
	jobsViewID     string
	jobsRunWait    bool
	jobsRunNoRT    bool
	jobPollSeconds int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job queue commands",
}

var jobsViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show one job's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		job, err := client.GetJob(cmd.Context(), jobsViewID)
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <unit>",
	Short: "Commit a unit's pending configuration jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRacadmClient()
		if err != nil {
			return err
		}
		defer client.Close()

		jid, err := client.RunJobs(cmd.Context(), args[0], !jobsRunNoRT, false)
		if err != nil {
			return err
		}
		fmt.Printf("created job %s\n", jid)
		if !jobsRunWait {
			return nil
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription(jid),
			progressbar.OptionShowCount(),
		)
		for {
			job, err := client.GetJob(cmd.Context(), jid)
			if err != nil {
				return err
			}
			_ = bar.Set(job.PercentComplete)
			if job.Terminal() {
				fmt.Println()
				printJob(job)
				if job.Status == racadm.JobStatusFailed {
					return fmt.Errorf("job %s failed: %s", jid, job.Message)
				}
				return nil
			}
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(time.Duration(jobPollSeconds) * time.Second):
			}
		}
	},
}

func printJob(job racadm.Job) {
	fmt.Printf("Job ID: %s\n", job.ID)
	fmt.Printf("Name: %s\n", job.Name)
	fmt.Printf("Status: %s\n", job.Status)
	fmt.Printf("Start Time: %s\n", job.StartTime)
	fmt.Printf("Message: %s\n", job.Message)
	fmt.Printf("Percent Complete: %d\n", job.PercentComplete)
}

func init() {
	jobsViewCmd.Flags().StringVarP(&jobsViewID, "id", "i", "", "Job ID")
	_ = jobsViewCmd.MarkFlagRequired("id")

	jobsRunCmd.Flags().BoolVar(&jobsRunWait, "wait", false, "Wait for the job to finish")
	jobsRunCmd.Flags().BoolVar(&jobsRunNoRT, "no-realtime", false, "Do not run the job immediately")
	jobsRunCmd.Flags().IntVar(&jobPollSeconds, "poll-interval", 2, "Seconds between job status polls")

	jobsCmd.AddCommand(jobsViewCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}
