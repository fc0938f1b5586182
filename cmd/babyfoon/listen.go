package main

import (
	"context"

	"github.com/dkeye/Babyfoon/internal/adapters/api"
	"github.com/dkeye/Babyfoon/internal/app/session"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/spf13/cobra"
)

func newListenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <code|link>",
		Short: "Play a channel's audio as 8 kHz 16-bit mono PCM on stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := domain.ParseDeepLink(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(ctx context.Context, s *session.Session, _ *api.Client) error {
				return s.Start(ctx, domain.RoleAudience, string(code))
			})
		},
	}
}
