package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"chatrelay/logger"
)

func main() {
	// Load .env file if any
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("failed to load .env file")
		}
	}
	log.Logger = logger.Get()

	cmd := &cli.Command{
		Name:  "chatrelay",
		Usage: "Streaming chat relay for gpt, claude and gemini",
		Commands: []*cli.Command{
			NewServeCommand(),
			NewChatCommand(),
			NewHealthCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
