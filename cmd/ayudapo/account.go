package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ayudapo/internal/auth"
	"ayudapo/internal/config"
)

func newHashPasswordCmd(a *app) *cobra.Command {
	var (
		user string
		save bool
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for auth.users (reads it from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save && strings.TrimSpace(user) == "" {
				return fmt.Errorf("--save needs --user")
			}
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			if !save {
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}
			if err := config.WriteAuthUser(dir, user, hash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved user %s\n", strings.TrimSpace(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Login name")
	cmd.Flags().BoolVar(&save, "save", false, "Store the hash in the project config")
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory (default: current directory)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials locally and print an API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			authn, err := auth.New(cfg.Auth.Users, cfg.Auth.JWTSecret, tokenTTL(cfg.Auth.TokenTTLMinutes))
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			if err := authn.Authenticate(user, password); err != nil {
				return err
			}
			token, exp, err := authn.IssueToken(strings.TrimSpace(user))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("expires "+exp.Local().Format("2006-01-02 15:04")))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Login name")
	return cmd
}

// readSecret reads without echo from a terminal, otherwise the first line of the command input.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func tokenTTL(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
