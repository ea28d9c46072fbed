package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/config"
	"github.com/chemviz/chemviz/internal/logging"
	"github.com/chemviz/chemviz/internal/session"
	"github.com/chemviz/chemviz/internal/tui"
	"github.com/chemviz/chemviz/internal/workspace"
)

// app carries what every command needs, built once before the command runs
type app struct {
	configPath string
	apiBase    string
	tokenFile  string
	logLevel   string
	debugMode  bool

	cfg      *config.Config
	info     config.LoadInfo
	logger   *slog.Logger
	logClose io.Closer
	store    *session.Store
	client   *apiclient.Client
	ws       *workspace.Workspace
	closed   bool
}

// newRoot creates the root command and the app its commands share
func newRoot() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "chemviz",
		Short: "Upload chemical equipment CSV files and explore their summaries",
		Long: `chemviz is a terminal client for the Chemical Equipment Visualizer backend.
Without a subcommand it opens the interactive UI. The subcommands run one
action and exit, which makes them usable from scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.StringVar(&a.apiBase, "api-base", "", "backend base URL, overrides config and environment")
	flags.StringVar(&a.tokenFile, "token-file", "", "file holding the session token")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.debugMode, "debug", false, "shorthand for --log-level debug")

	rootCmd.AddCommand(
		newLoginCommand(a),
		newRegisterCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newUploadCommand(a),
		newHistoryCommand(a),
		newTableCommand(a),
		newReportCommand(a),
		newSummaryCommand(a),
		newChartCommand(a),
		newPreviewCommand(a),
		NewShowCommand(a),
		NewDebugCommand(a),
	)

	return rootCmd, a
}

// run executes the command tree and releases the workspace and log file
// whether or not the command succeeded.
func run(ctx context.Context, rootCmd *cobra.Command, a *app) error {
	defer a.close()
	return rootCmd.ExecuteContext(ctx)
}

// Execute runs the root command
func Execute() {
	rootCmd, a := newRoot()
	if err := run(context.Background(), rootCmd, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, info, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiBase != "" {
		cfg.API.BaseURL = a.apiBase
		info.BaseURLSource = "--api-base"
	}
	if a.tokenFile != "" {
		cfg.Session.TokenFile = a.tokenFile
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.debugMode {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.info = info

	// the interactive UI owns the terminal, so it logs to a file
	if cmd == cmd.Root() {
		logger, closer, err := logging.OpenFile(cfg.Log.File, cfg.Log.Level)
		if err != nil {
			return err
		}
		a.logger, a.logClose = logger, closer
	} else {
		a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
	}
	a.logger.Debug("configuration loaded",
		"config", info.ConfigPath,
		"found", info.ConfigFound,
		"dotenv", info.DotEnvLoaded,
		"base_url", cfg.API.BaseURL,
		"base_url_source", info.BaseURLSource)

	store, err := session.Open(session.NewFileStorage(cfg.Session.TokenFile), a.logger)
	if err != nil {
		return err
	}
	client := apiclient.New(apiclient.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.TimeoutMS) * time.Millisecond,
		Tokens:  store,
		Logger:  a.logger,
	})
	store.SetExchanger(client)

	a.store = store
	a.client = client
	a.ws = workspace.New(client, a.logger)
	return nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.ws != nil {
		a.ws.Close()
	}
	if a.logClose != nil {
		a.logClose.Close()
	}
}

// requireLogin fails early for commands that need a token
func (a *app) requireLogin() error {
	if a.store.State() != session.Authenticated {
		return fmt.Errorf("not logged in, run `chemviz login` first")
	}
	return nil
}

func (a *app) runTUI(cmd *cobra.Command) error {
	err := tui.Run(tui.Options{
		Context:     cmd.Context(),
		Session:     a.store,
		Workspace:   a.ws,
		DownloadDir: a.cfg.Download.Dir,
		BaseURL:     a.cfg.API.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// failure turns a workspace or session error into the message a user sees
func failure(err error) error {
	var actionErr *workspace.ActionError
	if errors.As(err, &actionErr) {
		return errors.New(actionErr.Error())
	}
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%s failed: %s", authErr.Op, authErr.Message)
	}
	return err
}
