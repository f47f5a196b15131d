package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notely/notely/internal/client/api"
	"github.com/notely/notely/internal/client/config"
	"github.com/notely/notely/internal/client/workspace"
)

// Exit codes.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
)

const flushTimeout = 30 * time.Second

type rootFlags struct {
	configPath string
	serverURL  string
	statePath  string
	logLevel   string
}

// NewRootCommand builds the notes command tree.
func NewRootCommand(env Env) *cobra.Command {
	var (
		flags rootFlags
		app   *App
	)

	cmd := &cobra.Command{
		Use:           "notes",
		Short:         "Take notes from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.serverURL != "" {
				cfg.ServerURL = flags.serverURL
			}
			if flags.statePath != "" {
				cfg.StatePath = flags.statePath
			}
			if flags.logLevel != "" {
				cfg.LogLevel = flags.logLevel
			}
			app, err = newApp(cfg, env)
			return err
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", config.DefaultPath(), "config file")
	pf.StringVar(&flags.serverURL, "server", "", "server URL (overrides server_url)")
	pf.StringVar(&flags.statePath, "state", "", "local state database (overrides state_path)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	get := func() *App { return app }
	cmd.AddCommand(
		newSignupCmd(get),
		newSigninCmd(get),
		newLogoutCmd(get),
		newWhoamiCmd(get),
		newLoginCmd(get),
		newListCmd(get),
		newNewCmd(get),
		newEditCmd(get),
		newRmCmd(get),
		newSummarizeCmd(get),
	)
	closeAfterRun(cmd, func() error {
		if app == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		err := app.close(ctx)
		app = nil
		return err
	})
	return cmd
}

// closeAfterRun makes every command release the App when its RunE returns,
// including on failure, where cobra skips the post-run hooks.
func closeAfterRun(c *cobra.Command, closeApp func() error) {
	for _, sub := range c.Commands() {
		closeAfterRun(sub, closeApp)
	}
	if c.RunE == nil {
		return
	}
	run := c.RunE
	c.RunE = func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := closeApp(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
		return run(cmd, args)
	}
}

// Execute runs the CLI and exits with a code describing the failure.
func Execute() {
	cmd := NewRootCommand(Env{})
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		os.Exit(ExitCode(err))
	}
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, workspace.ErrNoSession), errors.Is(err, api.ErrUnauthorized):
		return ExitCodeAuthRequired
	default:
		return ExitCodeError
	}
}
