package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	username string
	password string
}

func newLoginCommand(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := creds.resolve(cmd)
			if err != nil {
				return err
			}
			if err := a.store.Login(cmd.Context(), username, password); err != nil {
				return failure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", strings.TrimSpace(username))
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newRegisterCommand(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := creds.resolve(cmd)
			if err != nil {
				return err
			}
			if err := a.store.Register(cmd.Context(), username, password); err != nil {
				return failure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", strings.TrimSpace(username))
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state and where settings came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:    %s\n", a.store.State())
			fmt.Fprintf(out, "Backend:    %s (%s)\n", a.client.BaseURL(), a.info.BaseURLSource)
			fmt.Fprintf(out, "Token file: %s\n", a.cfg.Session.TokenFile)
			configState := "not found, using defaults"
			if a.info.ConfigFound {
				configState = "loaded"
			}
			fmt.Fprintf(out, "Config:     %s (%s)\n", a.info.ConfigPath, configState)
			return nil
		},
	}
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.username, "username", "u", "", "account username (prompted when empty)")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "account password (prompted when empty)")
}

// resolve fills in whatever the flags left out by prompting on the terminal
func (c *credentialFlags) resolve(cmd *cobra.Command) (string, string, error) {
	username, password := c.username, c.password
	if username != "" && password != "" {
		return username, password, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "Username: ",
		Stdin:  io.NopCloser(cmd.InOrStdin()),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to open prompt: %w", err)
	}
	defer rl.Close()

	if username == "" {
		line, err := rl.Readline()
		if err != nil {
			return "", "", fmt.Errorf("failed to read username: %w", err)
		}
		username = line
	}
	if password == "" {
		secret, err := rl.ReadPassword("Password: ")
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(secret)
	}

	if strings.TrimSpace(username) == "" || password == "" {
		return "", "", errors.New("username and password are required")
	}
	return username, password, nil
}
