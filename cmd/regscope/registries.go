package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scottbass3/regscope/internal/registry"
)

func newRegistriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "registries",
		Aliases: []string{"ls"},
		Short:   "List connected registries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registries, err := a.provider.Registries(cmd.Context(), false)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(registries))
			for _, r := range registries {
				mode := "catalog"
				if r.IsMonolith() {
					mode = fmt.Sprintf("monolith (%d)", len(r.MonolithRepositories()))
				}
				rows = append(rows, []string{r.ID(), r.Label(), firstNonEmpty(r.Account(), "-"), mode})
			}
			return printTable(cmd.OutOrStdout(), "", "No registries connected.", []string{"ID", "REGISTRY", "ACCOUNT", "MODE"}, rows)
		},
	}
}

func newConnectCmd(a *app) *cobra.Command {
	var (
		opts          registry.ConnectOptions
		passwordStdin bool
		monolith      []string
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a registry",
		Example: `  regscope connect --service https://registry.example.com --account ci --password-stdin < token
  regscope connect --service registry.example.com --monolith team/app,team/api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passwordStdin {
				if opts.Account == "" {
					return errors.New("--password-stdin requires --account")
				}
				secret, err := readSecret(cmd)
				if err != nil {
					return err
				}
				opts.Secret = secret
			}
			if cmd.Flags().Changed("monolith") {
				opts.MonolithRepositories = append([]string{}, monolith...)
			}

			r, err := a.provider.ConnectRegistry(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Connected %s as %s", r.Label(), r.ID())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Service, "service", "", "registry URL, https:// is assumed when no scheme is given")
	cmd.Flags().StringVar(&opts.Account, "account", "", "account used for Basic auth and token exchange")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the account secret from stdin")
	cmd.Flags().StringSliceVar(&monolith, "monolith", nil, "skip catalog discovery and use these repositories")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func readSecret(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return "", errors.New("no secret on stdin")
	}
	secret := strings.TrimRight(scanner.Text(), "\r\n")
	if secret == "" {
		return "", errors.New("empty secret on stdin")
	}
	return secret, nil
}

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect ID",
		Short: "Disconnect a registry and forget its secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.provider.Registry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.provider.DisconnectRegistry(cmd.Context(), r); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Disconnected %s", r.Label())
			return nil
		},
	}
}

func newMonolithCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monolith",
		Short: "Edit the repository list of a monolith registry",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add ID NAME",
			Short: "Add a repository",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.provider.Registry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := r.ConnectMonolithRepository(args[1]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Added %s to %s", args[1], r.Label())
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove ID NAME",
			Short: "Remove a repository",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.provider.Registry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := r.DisconnectMonolithRepository(args[1]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Removed %s from %s", args[1], r.Label())
				return nil
			},
		},
	)
	return cmd
}
