package commands

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/config"
)

// NewDebugCommand creates the debug command group
func NewDebugCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Inspect the effective configuration or raw backend responses",
	}
	cmd.AddCommand(newDebugConfigCommand(a), newDebugRequestCommand(a))
	return cmd
}

func newDebugConfigCommand(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			data, err := toml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprintf(out, "# config: %s (found: %t)\n", a.info.ConfigPath, a.info.ConfigFound)
			fmt.Fprintf(out, "# base_url from: %s\n", a.info.BaseURLSource)
			fmt.Fprintf(out, "# .env loaded: %t\n", a.info.DotEnvLoaded)
			out.Write(data)

			if write {
				if err := config.Save(a.cfg, a.info.ConfigPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", a.info.ConfigPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "save the effective configuration to the config file")
	return cmd
}

func newDebugRequestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request <path-or-url>",
		Short: "GET a backend path with the session token and print the raw response",
		Long: `GET a path relative to the API root (for example /history/) or an
absolute URL, sending the stored token, and print the status and body.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Requesting: %s\n", args[0])
			fmt.Fprintln(out, "==========================================")

			resp, err := a.client.Do(cmd.Context(), http.MethodGet, args[0], nil, nil)
			var httpErr *apiclient.HTTPError
			if errors.As(err, &httpErr) {
				fmt.Fprintf(out, "Status: %d\n\n%s\n", httpErr.Status, httpErr.Body)
				return nil
			}
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			fmt.Fprintf(out, "Status: %d\n", resp.Status)
			fmt.Fprintf(out, "Request ID: %s\n", resp.RequestID)
			fmt.Fprintf(out, "Content-Type: %s\n\n", resp.Header.Get("Content-Type"))
			out.Write(resp.Body)
			fmt.Fprintln(out)
			return nil
		},
	}
}
