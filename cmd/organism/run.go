package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/organism/internal/agent"
	"github.com/normanking/organism/internal/bus"
	"github.com/normanking/organism/internal/logging"
	"github.com/normanking/organism/internal/metrics"
	"github.com/normanking/organism/internal/profile"
	"github.com/normanking/organism/internal/sim"
	"github.com/normanking/organism/internal/store"
	"github.com/normanking/organism/internal/tui"
	"github.com/normanking/organism/pkg/organism"
)

// runFlags are shared by run and watch.
type runFlags struct {
	profile string
	ticks   int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "organism profile (default: the scenario's profile)")
	cmd.Flags().IntVar(&f.ticks, "ticks", 0, "override the scenario tick count")
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	var (
		flags  runFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario to completion and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, args[0], flags)
			if err != nil {
				return err
			}
			defer s.Close()

			res, runErr := s.runner.Run(ctx, s.scenario)
			if res == nil {
				return runErr
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			return runErr
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// WATCH COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func watchCmd() *cobra.Command {
	var (
		flags    runFlags
		interval time.Duration
		paused   bool
	)
	cmd := &cobra.Command{
		Use:   "watch <scenario.yaml>",
		Short: "Step a scenario live in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The alternate screen owns the terminal; keep only the file sink.
			if err := closeLogs(); err != nil {
				return err
			}
			_, closer, err := logging.SetupWriter(io.Discard, cfg.Logging)
			if err != nil {
				return err
			}
			closeLogs = closer

			ctx := cmd.Context()
			s, err := openSession(ctx, args[0], flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.runner.Start(ctx, s.scenario); err != nil {
				return err
			}
			if interval == 0 {
				interval = cfg.Simulation.TickInterval
			}
			model := tui.New(ctx, s.runner, interval).WithPaused(paused)

			final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("watcher: %w", err)
			}
			if m, ok := final.(tui.Model); ok && m.Result() != nil {
				printResult(cmd.OutOrStdout(), m.Result())
				if m.Err() != nil && !errors.Is(m.Err(), context.Canceled) {
					return m.Err()
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "tick interval (default from config)")
	cmd.Flags().BoolVar(&paused, "paused", false, "start paused")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// session is everything a scenario run needs, opened from the config.
type session struct {
	scenario *sim.Scenario
	runner   *sim.Runner

	store     store.Store
	bus       *bus.Bus
	collector *metrics.Collector
	metrics   *http.Server
	observer  *bus.Observer
}

func openSession(ctx context.Context, scenarioPath string, flags runFlags) (*session, error) {
	sc, err := sim.LoadScenario(scenarioPath)
	if err != nil {
		return nil, err
	}
	if flags.ticks > 0 {
		sc.Ticks = flags.ticks
	}
	if sc.Ticks > cfg.Simulation.MaxTicks {
		return nil, fmt.Errorf("scenario %s runs %d ticks, more than simulation.max_ticks (%d)", sc.Name, sc.Ticks, cfg.Simulation.MaxTicks)
	}

	profilePath := flags.profile
	if profilePath == "" {
		profilePath = sc.ProfilePath()
	}
	if profilePath == "" {
		return nil, fmt.Errorf("scenario %s names no profile; pass --profile", sc.Name)
	}
	org, err := buildOrganism(profilePath)
	if err != nil {
		return nil, err
	}

	s := &session{scenario: sc, bus: bus.NewBus()}
	s.store, err = store.New(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.store.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	if cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector(s.bus)
		s.collector.Start()
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.collector.Handler())
		s.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listening")
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	if cfg.Observer.Enabled {
		s.observer = bus.NewObserver(s.bus, bus.ObserverConfig{
			Addr:          cfg.Observer.Addr,
			ReplayHistory: cfg.Observer.ReplayHistory,
			HistoryCount:  cfg.Observer.HistoryCount,
		})
		if err := s.observer.Start(); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.runner = sim.NewRunner(agent.NewComponent(org), sim.WithStore(s.store), sim.WithBus(s.bus))
	return s, nil
}

func buildOrganism(path string) (*organism.Organism, error) {
	p, err := profile.Load(path)
	if err != nil {
		return nil, err
	}
	return p.Build(organism.WithLogger(logging.Component("organism")))
}

// Close stops the servers and releases the store.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.observer != nil {
		if err := s.observer.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("observer stop")
		}
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown")
		}
	}
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close")
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
