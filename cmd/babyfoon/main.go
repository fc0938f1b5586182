// Command babyfoon runs one monitoring session on a device: `broadcast`
// streams PCM from stdin, `listen` plays a channel's audio as PCM on stdout.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("babyfoon failed")
		os.Exit(1)
	}
}
