package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/comigor/jobchat-go/internal/savedjobs"
)

func newSavedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved jobs and the application profile",
	}
	cmd.AddCommand(savedListCmd(), savedAddCmd(), savedRemoveCmd(), savedProfileCmd())
	return cmd
}

func withStore(fn func(ctx context.Context, s *savedjobs.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := savedjobs.Open(cfg.Storage.SavedJobsPath)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s)
	}
}

func savedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s *savedjobs.Store) error {
				jobs, err := s.SavedJobs(ctx)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved jobs.")
					return nil
				}
				for _, j := range jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", j.ID, j.Title, j.Organization, j.District)
				}
				return nil
			})(cmd, args)
		},
	}
}

func savedAddCmd() *cobra.Command {
	var job savedjobs.Job
	cmd := &cobra.Command{
		Use:   "add ID TITLE",
		Short: "Save a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			job.ID = id
			job.Title = args[1]
			return withStore(func(ctx context.Context, s *savedjobs.Store) error {
				added, err := s.SaveJob(ctx, job)
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %d is already saved.\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved job %d.\n", id)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&job.Organization, "org", "", "organization name")
	cmd.Flags().StringVar(&job.District, "district", "", "district name")
	return cmd
}

func savedRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a saved job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return withStore(func(ctx context.Context, s *savedjobs.Store) error {
				removed, err := s.RemoveJob(ctx, id)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %d was not saved.\n", id)
				}
				return nil
			})(cmd, args)
		},
	}
}

func savedProfileCmd() *cobra.Command {
	var p savedjobs.Profile
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the application profile, or replace it when flags are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			update := cmd.Flags().NFlag() > 0
			return withStore(func(ctx context.Context, s *savedjobs.Store) error {
				if update {
					if err := s.SetProfile(ctx, p); err != nil {
						return err
					}
				}
				cur, err := s.Profile(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "name:   %s\nemail:  %s\nphone:  %s\nresume: %s\n", cur.ApplicantName, cur.Email, cur.Phone, cur.ResumeURL)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&p.ApplicantName, "name", "", "applicant name")
	cmd.Flags().StringVar(&p.Email, "email", "", "email")
	cmd.Flags().StringVar(&p.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&p.ResumeURL, "resume", "", "resume URL")
	return cmd
}
