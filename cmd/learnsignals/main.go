// Package main provides the CLI entrypoint for learnsignals.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/learnsignals/internal/config"
	"github.com/verte-zerg/learnsignals/internal/generator"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/store"
	"github.com/verte-zerg/learnsignals/internal/tui"
)

var (
	flagServer    string
	flagStudent   int
	flagOffline   bool
	flagZones     int
	flagCatalog   string
	flagFocusWeak bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "learnsignals",
		Short:         "Traffic sign trainer with adaptive difficulty",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPlayCmd,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", config.DefaultServerURL, "backend base URL")
	pf.IntVar(&flagStudent, "student", config.DefaultStudent, "student id")
	pf.BoolVar(&flagOffline, "offline", false, "never contact the backend")
	pf.IntVar(&flagZones, "zones", 0, "play only the first N zones (0 = all)")
	pf.StringVar(&flagCatalog, "catalog", "", "YAML sign catalog (default: built in)")
	rootCmd.Flags().BoolVar(&flagFocusWeak, "focus-weak", false, "bias rounds toward weak signs")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newSignsCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newDevserverCmd())

	return rootCmd
}

func runPlayCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logPath := s.LogFile
	if logPath == "" {
		logPath = config.DefaultLogPath()
	}
	log, err := logging.New(s.LogMode, logPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	a, err := newApp(s, log, generator.New())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a.connectAsync(ctx, s.Timeouts.Probe, nil)
	if s.FocusWeak && len(a.weakSigns(ctx, st)) == 0 {
		logErrln("no stats available for weak-sign focus yet; using normal rounds")
	}

	m := tui.NewModel(tui.Options{
		Game:        a.game,
		Queue:       a.queue,
		Performance: a.perf,
		Mistakes:    a.mistakes,
		Journal:     st,
		Online:      a.online,
		WeakSigns:   func() map[string]struct{} { return a.weakSigns(ctx, st) },
		Logger:      log,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if err := a.shutdown(s.Timeouts.Session + s.Timeouts.Write); err != nil {
		logErrf("%v\n", err)
	}
	return nil
}

// loadSettings resolves config file, environment and changed flags, then
// validates the result.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringFlag(cmd, "server", &s.ServerURL, flagServer)
	applyIntFlag(cmd, "student", &s.Student, flagStudent)
	applyBoolFlag(cmd, "offline", &s.Offline, flagOffline)
	applyIntFlag(cmd, "zones", &s.Zones, flagZones)
	applyStringFlag(cmd, "catalog", &s.Catalog, flagCatalog)
	applyBoolFlag(cmd, "focus-weak", &s.FocusWeak, flagFocusWeak)
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func applyIntFlag(cmd *cobra.Command, name string, target *int, value int) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func applyBoolFlag(cmd *cobra.Command, name string, target *bool, value bool) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}

func logErrln(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
}
