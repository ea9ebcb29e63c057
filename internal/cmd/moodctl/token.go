package moodctl

import (
	"fmt"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/api"
	"github.com/spf13/cobra"
)

func (c *cli) tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		Long:  `Issue an HS256 bearer token with the admin role, signed with MOODRING_ENGINE_ADMIN_JWT_SECRET.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := api.IssueAdminToken(c.cfg.AdminJWTSecret, subject, ttl, c.now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "moodctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
