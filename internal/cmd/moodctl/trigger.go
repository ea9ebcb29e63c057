package moodctl

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/louisbranch/moodring/internal/platform/id"
	engineapp "github.com/louisbranch/moodring/internal/services/engine/app"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/spf13/cobra"
)

func (c *cli) triggerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Manage custom stat triggers",
	}
	cmd.AddCommand(
		c.triggerCreateCommand(),
		c.triggerListCommand(),
		c.triggerDeactivateCommand(),
		c.triggerSweepCommand(),
	)
	return cmd
}

func (c *cli) triggerCreateCommand() *cobra.Command {
	var (
		communityID string
		name        string
		stat        string
		modifier    float64
		duration    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active trigger",
		Long:  `Create a trigger adding modifier to one stat of every present member each cycle. A zero duration never expires.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseStat(stat)
			if err != nil {
				return err
			}
			var expiry *time.Duration
			if duration != 0 {
				expiry = &duration
			}
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				triggers := engineapp.NewTriggerEngine(store)
				triggerID, err := triggers.Create(cmd.Context(), communityID, name, parsed, modifier, expiry)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), triggerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "Community id")
	cmd.Flags().StringVar(&name, "name", "", "Trigger name")
	cmd.Flags().StringVar(&stat, "stat", "", "Stat to modify: mood, energy or activity")
	cmd.Flags().Float64Var(&modifier, "modifier", 0, "Amount added to the stat each cycle")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Lifetime of the trigger (0 = never expires)")
	_ = cmd.MarkFlagRequired("community")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("stat")
	return cmd
}

func (c *cli) triggerListCommand() *cobra.Command {
	var (
		communityID string
		activeOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the triggers of a community, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				triggers := engineapp.NewTriggerEngine(store)
				var (
					list []domain.Trigger
					err  error
				)
				if activeOnly {
					list, err = triggers.ListActive(cmd.Context(), communityID)
				} else {
					list, err = triggers.List(cmd.Context(), communityID)
				}
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSTAT\tMODIFIER\tEXPIRES\tACTIVE")
				for _, trigger := range list {
					expires := "never"
					if trigger.ExpiresAt != nil {
						expires = trigger.ExpiresAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%t\n",
						trigger.ID, trigger.Name, trigger.Stat, trigger.Modifier, expires, trigger.Active)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "Community id")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list triggers that currently apply")
	_ = cmd.MarkFlagRequired("community")
	return cmd
}

func (c *cli) triggerDeactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <trigger-id>",
		Short: "Deactivate a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !id.Valid(args[0]) {
				return fmt.Errorf("invalid trigger id %q", args[0])
			}
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				changed, err := engineapp.NewTriggerEngine(store).Deactivate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was already inactive\n", args[0])
				}
				return nil
			})
		},
	}
}

func (c *cli) triggerSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate every expired trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				swept, err := engineapp.NewTriggerEngine(store).SweepExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired triggers\n", swept)
				return nil
			})
		},
	}
}
