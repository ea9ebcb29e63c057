package moodctl

import (
	"context"
	"fmt"
	"log"
	"time"

	platformgrpc "github.com/louisbranch/moodring/internal/platform/grpc"
	engineapp "github.com/louisbranch/moodring/internal/services/engine/app"
	"github.com/spf13/cobra"
)

func (c *cli) healthCommand() *cobra.Command {
	var (
		addr    string
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the engine gRPC health endpoint",
		Long:  `Check the engine scheduler health service. With --wait, poll until it reports SERVING or the timeout elapses.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.EngineAddr
			}
			conn, err := platformgrpc.Dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if wait {
				if err := platformgrpc.WaitForHealth(ctx, conn, engineapp.HealthService, log.Printf); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s SERVING\n", addr)
				return nil
			}
			status, err := platformgrpc.Check(ctx, conn, engineapp.HealthService)
			if err != nil {
				return fmt.Errorf("check %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", addr, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Engine gRPC address (default: MOODRING_MOODCTL_ENGINE_ADDR)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the engine reports SERVING")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall deadline")
	return cmd
}
