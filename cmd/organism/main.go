// Package main is the entry point for the organism CLI. It runs scripted
// scenarios against organism profiles, watches them live in the terminal
// and inspects recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/normanking/organism/internal/config"
	"github.com/normanking/organism/internal/logging"
)

var (
	version   = "0.1.0"
	cfgPath   string
	storeKind string
	verbose   bool
	noColor   bool

	cfg       *config.Config
	closeLogs = func() error { return nil }
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "organism",
		Short: "organism - operant-conditioning behavioral engine",
		Long: `organism runs synthetic organisms defined in YAML profiles through
scripted scenarios, one discrete tick at a time.

Run a scenario:        organism run examples/scenarios/lever-press.yaml
Watch it live:         organism watch examples/scenarios/lever-press.yaml
Inspect a profile:     organism catalog examples/profiles/rat.yaml
List recorded runs:    organism runs`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: func(*cobra.Command, []string) error { return closeLogs() },
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.organism/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "override store backend (memory or sqlite)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("organism v%s\n", version)
		},
	})
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the global logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if storeKind != "" {
		cfg.Store.Kind = storeKind
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}
	if noColor {
		cfg.Logging.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logging.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	_, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	closeLogs = closer
	return nil
}
