package moodctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/moodring/internal/services/engine/audit"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/spf13/cobra"
)

// rewardScope matches domain.Operation.Scope for reward grants.
const rewardScope = "reward"

func (c *cli) auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read role operation audit files",
	}
	cmd.AddCommand(auditCatCommand())
	return cmd
}

func auditCatCommand() *cobra.Command {
	var (
		failedOnly bool
		scope      string
	)
	cmd := &cobra.Command{
		Use:   "cat <file>...",
		Short: "Decode audit files as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope = strings.ToLower(strings.TrimSpace(scope))
			if scope != "" && scope != rewardScope {
				category, err := domain.ParseCategory(scope)
				if err != nil {
					return err
				}
				scope = category.String()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				entries, err := audit.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				for _, entry := range entries {
					if failedOnly && entry.OK {
						continue
					}
					if scope != "" && entry.Scope != scope {
						continue
					}
					if err := enc.Encode(entry); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only print failed operations")
	cmd.Flags().StringVar(&scope, "scope", "", "Only print one scope: a category name or reward")
	return cmd
}
