package main

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/normanking/organism/internal/profile"
	"github.com/normanking/organism/internal/sim"
	"github.com/normanking/organism/internal/store"
	"github.com/normanking/organism/pkg/organism/operant"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A78BFA"})
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

func statusText(s store.RunStatus) string {
	switch s {
	case store.RunCompleted:
		return okStyle.Render(string(s))
	case store.RunFailed:
		return failStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

func printResult(w io.Writer, res *sim.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s · %s", res.Organism, res.Scenario)))
	fmt.Fprintf(w, "run %s  %s  %d ticks in %s\n",
		mutedStyle.Render(res.RunID), statusText(res.Status), len(res.Ticks), res.Duration.Round(time.Millisecond))

	if len(res.Emitted) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Responses"))
		t := newTable("Action", "Ticks emitting")
		for _, name := range slices.Sorted(maps.Keys(res.Emitted)) {
			t.Row(name, fmt.Sprint(res.Emitted[name]))
		}
		fmt.Fprintln(w, t)
	}

	if assocs := res.Final.Associations; len(assocs) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Associations"))
		t := newTable("ID", "Context", "Action", "Strength", "Phase")
		for _, a := range assocs {
			t.Row(fmt.Sprint(a.ID), a.Key.Context, a.Key.Action, fmt.Sprintf("%.3f", a.Strength), a.Phase.String())
		}
		fmt.Fprintln(w, t)
	}

	if len(res.Final.Drives)+len(res.Final.Emotions) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("State"))
		t := newTable("Kind", "Name", "Value")
		for _, d := range res.Final.Drives {
			t.Row("drive", d.Name, fmt.Sprintf("%.3f", d.Value))
		}
		for _, e := range res.Final.Emotions {
			t.Row("emotion", e.Name, fmt.Sprintf("%.3f", e.Value))
		}
		fmt.Fprintln(w, t)
	}
}

func printProfile(w io.Writer, p *profile.Profile) {
	fmt.Fprintln(w, titleStyle.Render(p.Name))
	if p.Description != "" {
		fmt.Fprintln(w, mutedStyle.Render(p.Description))
	}

	fmt.Fprintln(w, sectionStyle.Render("Stimuli"))
	st := newTable("Name", "Tags", "Description")
	for _, s := range p.Stimuli {
		st.Row(s.Name, strings.Join(s.Tags, ","), s.Description)
	}
	fmt.Fprintln(w, st)

	fmt.Fprintln(w, sectionStyle.Render("Actions"))
	at := newTable("Name", "Threshold", "Decay", "Triggered by")
	for _, a := range p.Actions {
		var by []string
		for _, tr := range p.Triggers {
			if tr.Action == a.Name {
				by = append(by, fmt.Sprintf("%s×%.2f", tr.Stimulus, tr.Gain))
			}
		}
		at.Row(a.Name, fmt.Sprintf("%.2f", a.Threshold), fmt.Sprintf("%.2f", a.DecayRate), strings.Join(by, " "))
	}
	fmt.Fprintln(w, at)

	if len(p.Exclusions) > 0 {
		pairs := make([]string, len(p.Exclusions))
		for i, ex := range p.Exclusions {
			pairs[i] = strings.Join(ex, " ⊥ ")
		}
		fmt.Fprintf(w, "exclusive: %s\n", strings.Join(pairs, ", "))
	}

	def := p.Definition()
	if rs := def.Learning.Reinforcers; len(rs) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Reinforcers"))
		rt := newTable("Stimulus", "Magnitude")
		for _, r := range slices.SortedFunc(slices.Values(rs), func(a, b operant.Reinforcer) int {
			return cmp.Compare(a.Stimulus, b.Stimulus)
		}) {
			rt.Row(r.Stimulus, fmt.Sprintf("%+.2f", r.Magnitude))
		}
		fmt.Fprintln(w, rt)
	}

	if len(p.Drives)+len(p.Emotions) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Drives and emotions"))
		fmt.Fprintf(w, "%d drives, %d emotions\n", len(p.Drives), len(p.Emotions))
	}
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no runs recorded"))
		return
	}
	t := newTable("ID", "Organism", "Scenario", "Status", "Ticks", "Started")
	for _, r := range runs {
		t.Row(r.ID, r.Organism, r.Scenario, statusText(r.Status), fmt.Sprint(r.Ticks), r.StartedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w, t)
}

func printHistory(w io.Writer, run store.Run, ticks []store.Tick) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s · %s", run.Organism, run.Scenario)))
	fmt.Fprintf(w, "run %s  %s\n", mutedStyle.Render(run.ID), statusText(run.Status))
	if run.Error != "" {
		fmt.Fprintln(w, failStyle.Render(run.Error))
	}
	t := newTable("Instant", "Emitting", "Associations")
	for _, tk := range ticks {
		assocs := make([]string, len(tk.Associations))
		for i, a := range tk.Associations {
			assocs[i] = fmt.Sprintf("%s->%s %.2f", a.Context, a.Action, a.Strength)
		}
		t.Row(fmt.Sprint(tk.Instant), strings.Join(tk.Emitting, " "), strings.Join(assocs, ", "))
	}
	fmt.Fprintln(w, t)
}
