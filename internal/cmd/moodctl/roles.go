package moodctl

import (
	"fmt"
	"text/tabwriter"

	engineapp "github.com/louisbranch/moodring/internal/services/engine/app"
	"github.com/louisbranch/moodring/internal/services/engine/presets"
	"github.com/spf13/cobra"
)

func (c *cli) rolesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage community roles",
	}
	cmd.AddCommand(c.rolesImportCommand())
	return cmd
}

func (c *cli) rolesImportCommand() *cobra.Command {
	var (
		communityID string
		preset      string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create the roles a preset names in a community",
		Long: `Create every role named by the preset, skipping roles that already exist,
and print the resulting name to id mapping for the presets file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			file, err := presets.Load(c.cfg.PresetsPath)
			if err != nil {
				return err
			}
			if preset == "" {
				preset = file.PresetFor(communityID)
			}
			names, err := file.RoleNames(preset)
			if err != nil {
				return err
			}

			gateway, closeGateway, err := engineapp.OpenGateway(cmd.Context(), c.cfg.gatewayConfig())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeGateway(); closeErr != nil && err == nil {
					err = fmt.Errorf("close gateway: %w", closeErr)
				}
			}()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tROLE ID\tCREATED")
			for _, name := range names {
				roleID, created, err := gateway.CreateRoleIfAbsent(cmd.Context(), communityID, name)
				if err != nil {
					_ = tw.Flush()
					return fmt.Errorf("import role %q: %w", name, err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\n", name, roleID, created)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "Community id")
	cmd.Flags().StringVar(&preset, "preset", "", "Preset to import (default: the community's preset)")
	_ = cmd.MarkFlagRequired("community")
	return cmd
}
