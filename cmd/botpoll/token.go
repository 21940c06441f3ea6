package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelaire/botpoll/internal/keychain"
)

func newTokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token stored in the system keychain",
	}

	set := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the bot token (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				value = line
			}

			if err := keychain.SetToken(strings.TrimSpace(value)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token stored in keychain.")
			return nil
		},
	}

	token.AddCommand(set)
	return token
}
