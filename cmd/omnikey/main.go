package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/omnikey-app/omnikey/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("omnikey failed")
		os.Exit(1)
	}
}
