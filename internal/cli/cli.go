// Package cli wires the maxwell commands onto cobra.
package cli

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	configPath  string
	initialized bool
	rootCmd     *cobra.Command
}

func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "maxwell",
		Short:         "Score text against human and synthetic reference dictionaries",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initApp()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	c.rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	c.rootCmd.PersistentFlags().BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging")
	c.rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to a .toml, .yaml or .json config file")

	c.rootCmd.AddCommand(c.newCalibrateCommand())
	c.rootCmd.AddCommand(c.newAnalyzeCommand())
	c.rootCmd.AddCommand(c.newTournamentCommand())
	c.rootCmd.AddCommand(c.newAggregateCommand())
	c.rootCmd.AddCommand(c.newReportCommand())
	c.rootCmd.AddCommand(c.newInspectCommand())
	c.rootCmd.AddCommand(c.newRunsCommand())
}

func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
}

// Run executes the CLI with os.Args.
func (c *CLI) Run() error {
	return c.execute()
}

// RunArgs executes the CLI with explicit arguments.
func (c *CLI) RunArgs(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.execute()
}

func (c *CLI) execute() error {
	err := c.rootCmd.Execute()
	if err != nil {
		slog.Error("command failed", "error", err)
	}
	return err
}

func (c *CLI) initApp() {
	if c.initialized {
		return
	}
	c.initialized = true

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		defer slog.Warn("could not read .env", "error", err)
	}

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
