package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"chatrelay/chat"
	"chatrelay/client"
	"chatrelay/common"
)

func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with a provider from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"P"},
				Value:   common.ProviderGPT,
				Usage:   "Provider to chat with (gpt, claude, gemini)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model override; defaults to the provider's configured model",
			},
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
		Action: handleChatCommand,
	}
}

func handleChatCommand(cliCtx context.Context, cmd *cli.Command) error {
	config, err := common.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	relay := client.NewClient(cmd.String("server"), config)
	selection := client.Selection{
		Provider: cmd.String("provider"),
		Model:    cmd.String("model"),
	}

	ctx, cancel := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conv := chat.NewConversation()
	fmt.Printf("chatting with %s — /clear resets, /quit exits\n", selection.Provider)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			conv.Clear()
			fmt.Println("conversation cleared")
			continue
		}

		conv.Append(chat.ChatMessage{Role: chat.RoleUser, Content: line})
		if err := streamTurn(ctx, relay, conv, selection); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func streamTurn(ctx context.Context, relay *client.Client, conv *chat.Conversation, selection client.Selection) error {
	return relay.StreamChat(ctx, conv, selection, client.Callbacks{
		OnToken: func(messageId, content string) {
			fmt.Print(content)
		},
		OnComplete: func(messageId, content string) {
			fmt.Println()
		},
		OnConnectionStatus: func(state client.ConnectionState) {
			log.Debug().Str("state", string(state)).Msg("connection state changed")
			if state == client.StateReconnecting {
				fmt.Fprintln(os.Stderr, "\n[reconnecting...]")
			}
		},
	})
}
