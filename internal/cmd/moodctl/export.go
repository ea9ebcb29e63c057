package moodctl

import (
	"fmt"

	"github.com/louisbranch/moodring/internal/services/engine/export"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/spf13/cobra"
)

func (c *cli) exportCommand() *cobra.Command {
	var communityID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload member snapshots to S3",
		Long:  `Upload a zstd-compressed JSONL snapshot of member state for one community, or for every community when --community is empty.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			putter, err := c.openS3(cmd.Context(), c.cfg.s3Config())
			if err != nil {
				return err
			}
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				exporter, err := export.NewExporter(store, putter, c.cfg.ExportBucket, c.cfg.ExportPrefix)
				if err != nil {
					return err
				}
				var results []export.Result
				if communityID != "" {
					var result export.Result
					result, err = exporter.ExportCommunity(cmd.Context(), communityID)
					if err == nil {
						results = append(results, result)
					}
				} else {
					results, err = exporter.ExportAll(cmd.Context())
				}
				for _, result := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s members=%d bytes=%d\n", c.cfg.ExportBucket, result.Key, result.Members, result.Bytes)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "Community id (default: all communities)")
	return cmd
}
