package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/organism/internal/profile"
	"github.com/normanking/organism/internal/sim"
	"github.com/normanking/organism/internal/store"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ═══════════════════════════════════════════════════════════════════════════════

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [profile.yaml]",
		Short: "Describe a profile, or list the profiles directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, err := profile.Load(args[0])
				if err != nil {
					return err
				}
				printProfile(out, p)
				return nil
			}

			profiles, err := profile.LoadDir(cfg.Simulation.ProfilesDir)
			if len(profiles) == 0 && err == nil {
				fmt.Fprintln(out, mutedStyle.Render("no profiles in "+cfg.Simulation.ProfilesDir))
				return nil
			}
			t := newTable("Name", "Stimuli", "Actions", "Reinforcers", "Source")
			for _, p := range profiles {
				def := p.Definition()
				t.Row(p.Name,
					fmt.Sprint(len(p.Stimuli)),
					fmt.Sprint(len(p.Actions)),
					fmt.Sprint(len(def.Learning.Reinforcers)),
					mutedStyle.Render(p.Source))
			}
			if len(profiles) > 0 {
				fmt.Fprintln(out, t)
			}
			return err
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATE
// ═══════════════════════════════════════════════════════════════════════════════

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.yaml>...",
		Short: "Check profiles and scenarios without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				kind, err := validateFile(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", failStyle.Render("✗"), path)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("✓"), path, mutedStyle.Render(kind))
			}
			return errors.Join(errs...)
		},
	}
}

// validateFile treats documents with a ticks key as scenarios and
// everything else as profiles.
func validateFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	if _, ok := probe["ticks"]; !ok {
		p, err := profile.Load(path)
		if err != nil {
			return "", err
		}
		if _, err := p.Build(); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return "profile", nil
	}

	sc, err := sim.LoadScenario(path)
	if err != nil {
		return "", err
	}
	if sc.Ticks > cfg.Simulation.MaxTicks {
		return "", fmt.Errorf("%s: %d ticks exceeds simulation.max_ticks (%d)", path, sc.Ticks, cfg.Simulation.MaxTicks)
	}
	if sc.Profile == "" {
		return "scenario", nil
	}
	p, err := profile.Load(sc.ProfilePath())
	if err != nil {
		return "", err
	}
	known := make([]string, len(p.Stimuli))
	for i, s := range p.Stimuli {
		known[i] = s.Name
	}
	for _, step := range sc.Steps {
		for _, ev := range step.Stimuli {
			if !slices.Contains(known, ev.Name) {
				return "", fmt.Errorf("%s: tick %d: stimulus %q is not in profile %s", path, step.Tick, ev.Name, p.Name)
			}
		}
	}
	if sc.Noise != nil {
		for _, name := range sc.Noise.Stimuli {
			if !slices.Contains(known, name) {
				return "", fmt.Errorf("%s: noise stimulus %q is not in profile %s", path, name, p.Name)
			}
		}
	}
	return "scenario", nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDED RUNS
// ═══════════════════════════════════════════════════════════════════════════════

func openStore(cmd *cobra.Command) (store.Store, error) {
	s, err := store.New(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := s.Init(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return s, nil
}

func runsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func historyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <run-id>",
		Short: "Print the per-tick trace of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrUnknownRun) && cfg.Store.Kind != "sqlite" {
					return fmt.Errorf("%w: the %s store keeps nothing between invocations", err, cfg.Store.Kind)
				}
				return err
			}
			ticks, err := s.Ticks(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Run   store.Run    `json:"run"`
					Ticks []store.Tick `json:"ticks"`
				}{run, ticks})
			}
			printHistory(cmd.OutOrStdout(), run, ticks)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the trace as JSON")
	return cmd
}
