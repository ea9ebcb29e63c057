package moodctl

import (
	"encoding/json"

	"github.com/louisbranch/moodring/internal/services/engine/export"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/spf13/cobra"
)

func (c *cli) stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect member state",
	}
	cmd.AddCommand(c.stateShowCommand())
	return cmd
}

func (c *cli) stateShowCommand() *cobra.Command {
	var communityID, memberID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one member's state and progress as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				record, err := store.GetMember(cmd.Context(), communityID, memberID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(export.RowFromRecord(record))
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "Community id")
	cmd.Flags().StringVar(&memberID, "member", "", "Member id")
	_ = cmd.MarkFlagRequired("community")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
