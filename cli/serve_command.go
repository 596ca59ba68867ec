package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"chatrelay/api"
	"chatrelay/common"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the relay server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured server port",
			},
		},
		Action: handleServeCommand,
	}
}

func handleServeCommand(cliCtx context.Context, cmd *cli.Command) error {
	config, err := common.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}

	srv := api.RunServer(config)
	log.Info().
		Str("host", config.Server.Host).
		Int("port", config.Server.Port).
		Msg("chatrelay server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-cliCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
