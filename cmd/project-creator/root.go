package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nfa-vfxim/project-creator/internal/config"
	"github.com/nfa-vfxim/project-creator/internal/directory"
	"github.com/nfa-vfxim/project-creator/internal/logbook"
	"github.com/nfa-vfxim/project-creator/internal/prompt"
	"github.com/nfa-vfxim/project-creator/internal/shotgrid"
	"github.com/nfa-vfxim/project-creator/internal/submit"
	"github.com/nfa-vfxim/project-creator/internal/tui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errReported marks failures that were already shown to the user.
var errReported = errors.New("reported")

const envFile = ".env"

type rootOptions struct {
	configPath string
	plain      bool
}

func newRootCommand() *cobra.Command {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:           "project-creator",
		Short:         "Create a ShotGrid project with its pipeline configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts.plain || !interactive(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVar(&opts.plain, "plain", false, "Ask line by line instead of showing the full-screen form")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand(&opts))

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "project-creator %s\n", version)
			return nil
		},
	}
}

func configPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return config.DefaultPath()
}

func loadConfig(flag string) (*config.Config, error) {
	path, err := configPath(flag)
	if err != nil {
		return nil, err
	}
	return config.Load(path, envFile)
}

func interactive() bool {
	for _, f := range []*os.File{os.Stdin, os.Stdout} {
		fd := f.Fd()
		if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			return false
		}
	}
	return true
}

// connector builds the ShotGrid client from cfg and opens a session.
func connector(cfg *config.Config, lb *logbook.Logbook) tui.Connector {
	return func(ctx context.Context) (*directory.Session, error) {
		key, err := cfg.APIKey()
		if err != nil {
			return nil, &directory.ConnectionError{Err: err}
		}
		client, err := shotgrid.New(cfg.ShotGrid.Site, cfg.ShotGrid.ScriptName, key,
			shotgrid.WithTimeout(cfg.ShotGrid.Timeout))
		if err != nil {
			return nil, &directory.ConnectionError{Err: err}
		}
		return directory.Connect(ctx, client,
			directory.WithSupervisorTier(directory.PermissionTier{ID: cfg.SupervisorTier.ID, Name: cfg.SupervisorTier.Name}),
			directory.WithLogbook(lb),
		)
	}
}

func run(ctx context.Context, cfg *config.Config, plain bool, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lb, err := logbook.Open(cfg.LogsDir())
	if err != nil {
		fmt.Fprintf(stderr, "Warning: logging disabled: %v\n", err)
	} else {
		defer lb.Close()
		lb.Info("Session opened · %s as %s (config %s)", cfg.ShotGrid.Site, cfg.ShotGrid.ScriptName, describePath(cfg.Path))
	}
	lock := submit.NewLock(cfg.LogsDir())
	connect := connector(cfg, lb)

	if plain {
		return runPlain(ctx, cfg, connect, lb, lock, stdout, stderr)
	}

	app := tui.NewApp(cfg,
		tui.WithConnector(connect),
		tui.WithLogbook(lb),
		tui.WithLock(lock),
	)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run form: %w", err)
	}
	if err := app.Err(); err != nil {
		fmt.Fprintln(stderr, submit.UserMessage(err))
		return errReported
	}
	if url := app.URL(); url != "" {
		fmt.Fprintf(stdout, "Project created: %s\n", url)
	}
	return nil
}

func runPlain(ctx context.Context, cfg *config.Config, connect tui.Connector, lb *logbook.Logbook, lock *submit.Lock, stdout, stderr io.Writer) error {
	fmt.Fprintf(stdout, "Connecting to %s...\n", cfg.ShotGrid.Site)
	session, err := connect(ctx)
	if err != nil {
		lb.Error("%v", err)
		fmt.Fprintln(stderr, submit.UserMessage(err))
		return errReported
	}
	orch := submit.New(session, session.Service(),
		submit.WithSettings(submit.Settings{
			Site:               cfg.ShotGrid.Site,
			PipelineRepository: cfg.Pipeline.Repository,
			PluginIDs:          cfg.Pipeline.PluginIDs,
		}),
		submit.WithLogbook(lb),
	)
	flow := prompt.New(session, orch,
		prompt.WithOutput(stdout),
		prompt.WithLock(lock),
		prompt.WithLogbook(lb),
	)
	result, err := flow.Run(ctx)
	switch {
	case errors.Is(err, terminal.InterruptErr), errors.Is(err, prompt.ErrCancelled):
		fmt.Fprintln(stdout, "Nothing was created.")
		return nil
	case err != nil:
		lb.Error("%v", err)
		fmt.Fprintln(stderr, submit.UserMessage(err))
		return errReported
	case !result.OK():
		fmt.Fprintln(stderr, submit.UserMessage(result.Err))
		return errReported
	}
	return nil
}

func describePath(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
