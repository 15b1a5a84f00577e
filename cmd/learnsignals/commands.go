package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/learnsignals/internal/catalog"
	"github.com/verte-zerg/learnsignals/internal/config"
	"github.com/verte-zerg/learnsignals/internal/devserver"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/predict"
	"github.com/verte-zerg/learnsignals/internal/statsui"
	"github.com/verte-zerg/learnsignals/internal/store"
)

const (
	defaultCurveWindow = 20
	defaultDevAddr     = "127.0.0.1:8000"
)

var (
	statsSince       string
	statsLast        int
	statsCurveWindow int

	devAddr     string
	devStudents []int
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// ensureConfigFile writes the commented template unless path exists.
func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Template()), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check predictor, feedback and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE:  runProbeCmd,
	}
}

func runProbeCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(s.LogMode, s.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	client, err := predict.New(predict.Options{
		PredictorURL:    s.PredictorBaseURL(),
		FeedbackURL:     s.ServerURL,
		ProbeTimeout:    s.Timeouts.Probe,
		PredictTimeout:  s.Timeouts.Predict,
		FeedbackTimeout: s.Timeouts.Feedback,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	svc, err := metrics.New(metrics.Options{
		BaseURL:      s.ServerURL,
		StudentID:    s.Student,
		ProbeTimeout: s.Timeouts.Probe,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	results := probeAll(cmd.Context(), client, svc)
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "unreachable: " + r.Err.Error()
			failed++
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s  %s\n", r.Name, r.URL, status); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if failed == len(results) {
		return errors.New("no backend endpoint reachable")
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N games")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := statsConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	m := statsui.NewModel(st, cfg)
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func statsConfig(cmd *cobra.Command) (model.StatsConfig, error) {
	var since *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return model.StatsConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		since = &parsed
	}
	if statsLast < 0 {
		return model.StatsConfig{}, fmt.Errorf("--last must be >= 0")
	}
	if statsCurveWindow <= 0 {
		return model.StatsConfig{}, fmt.Errorf("--curve-window must be greater than 0")
	}
	cfg := model.StatsConfig{Since: since, Last: statsLast, CurveWindow: statsCurveWindow}
	if cmd.Flags().Changed("student") {
		cfg.Student = flagStudent
	}
	return cfg, nil
}

func newSignsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signs",
		Short: "List catalog zones and signs",
		Args:  cobra.NoArgs,
		RunE:  runSignsCmd,
	}
}

func runSignsCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(s.Catalog)
	if err != nil {
		return err
	}
	if s.Zones > 0 {
		cat = cat.Limit(s.Zones)
	}
	return writeCatalog(cmd.OutOrStdout(), cat)
}

func writeCatalog(w io.Writer, cat *catalog.Catalog) error {
	nameWidth := 0
	for _, z := range cat.Zones {
		for _, sg := range z.Signs {
			nameWidth = max(nameWidth, runewidth.StringWidth(sg.Name))
		}
	}
	for i, z := range cat.Zones {
		if _, err := fmt.Fprintf(w, "Zona %d: %s (%s-%s)\n", i+1, z.Name, z.Bounds.Min, z.Bounds.Max); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		for _, sg := range z.Signs {
			if _, err := fmt.Fprintf(w, "  %s  %s\n", runewidth.FillRight(sg.Name, nameWidth), sg.Description); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	_, err := fmt.Fprintf(w, "%d zones, %d signs\n", cat.Len(), cat.SignCount())
	return err
}

func newDevserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the development backend",
		Args:  cobra.NoArgs,
		RunE:  runDevserverCmd,
	}
	cmd.Flags().StringVar(&devAddr, "addr", defaultDevAddr, "listen address")
	cmd.Flags().IntSliceVar(&devStudents, "students", nil, "extra student ids to register")
	return cmd
}

func runDevserverCmd(cmd *cobra.Command, _ []string) error {
	s, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(s.LogMode, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := devserver.New(log)
	for _, id := range devStudents {
		srv.AddStudent(id)
	}
	httpSrv := srv.NewHTTPServer(devAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("devserver listening", "addr", devAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("devserver failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down devserver: %w", err)
	}
	log.Info("devserver stopped")
	return nil
}
