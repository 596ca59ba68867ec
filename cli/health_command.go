package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"chatrelay/client"
	"chatrelay/common"
)

func NewHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the relay server and its providers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Relay base URL; defaults to the configured local server",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
			},
		},
		Action: handleHealthCommand,
	}
}

func handleHealthCommand(cliCtx context.Context, cmd *cli.Command) error {
	config, err := common.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	relay := client.NewClient(cmd.String("server"), config)
	report, err := relay.Health(cliCtx)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", report.Status)
	for _, name := range common.KnownProviders {
		status, ok := report.Providers[name]
		if !ok {
			continue
		}
		fmt.Printf("  %-7s configured=%t available=%t\n", name, status.Configured, status.Available)
	}
	return nil
}
