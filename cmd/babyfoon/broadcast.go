package main

import (
	"context"
	"fmt"

	"github.com/dkeye/Babyfoon/internal/adapters/api"
	"github.com/dkeye/Babyfoon/internal/app/session"
	"github.com/spf13/cobra"
)

func newBroadcastCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast",
		Short: "Stream 8 kHz 16-bit mono PCM from stdin under a new channel code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(ctx context.Context, s *session.Session, client *api.Client) error {
				code, err := session.StartBroadcast(ctx, s, client, cfg.Device.ClaimAttempts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Channel code: %s\nShare link:   %s\n", code, code.DeepLink())
				return nil
			})
		},
	}
}
