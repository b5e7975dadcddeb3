package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/normanking/organism/internal/sim"
	"github.com/normanking/organism/pkg/organism"
)

const (
	minInterval = 20 * time.Millisecond
	maxInterval = 5 * time.Second
	barWidth    = 30
)

// tickMsg asks the model to step. gen discards ticks scheduled before a
// pause or speed change.
type tickMsg struct {
	gen int
}

// Model is the bubbletea model of the watcher. The runner must already be
// started.
type Model struct {
	ctx    context.Context
	runner *sim.Runner

	keys   KeyMap
	help   help.Model
	styles Styles
	bar    progress.Model

	interval time.Duration
	gen      int
	paused   bool

	last   sim.TickRecord
	result *sim.Result
	err    error
}

// New creates a watcher stepping runner every interval.
func New(ctx context.Context, runner *sim.Runner, interval time.Duration) Model {
	return Model{
		ctx:      ctx,
		runner:   runner,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		styles:   DefaultStyles(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
		interval: clampInterval(interval),
	}
}

// WithPaused returns a copy of m that starts paused or running.
func (m Model) WithPaused(paused bool) Model {
	m.paused = paused
	return m
}

// Result returns the finished run, or nil while it is still going.
func (m Model) Result() *sim.Result { return m.result }

// Err returns the error that stopped the run, if any.
func (m Model) Err() error { return m.err }

// Paused reports whether automatic stepping is paused.
func (m Model) Paused() bool { return m.paused }

// Interval returns the current tick interval.
func (m Model) Interval() time.Duration { return m.interval }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.schedule()
}

func (m Model) schedule() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if msg.gen != m.gen || m.paused || m.finished() {
			return m, nil
		}
		m = m.step()
		if m.finished() {
			return m, nil
		}
		return m, m.schedule()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if !m.finished() {
				m = m.finish(context.Canceled)
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			m.gen++
			if !m.paused && !m.finished() {
				return m, m.schedule()
			}
		case key.Matches(msg, m.keys.Step):
			if m.paused && !m.finished() {
				m = m.step()
			}
		case key.Matches(msg, m.keys.Faster):
			m.interval = clampInterval(m.interval / 2)
			m.gen++
			if !m.paused && !m.finished() {
				return m, m.schedule()
			}
		case key.Matches(msg, m.keys.Slower):
			m.interval = clampInterval(m.interval * 2)
			m.gen++
			if !m.paused && !m.finished() {
				return m, m.schedule()
			}
		}
	}
	return m, nil
}

func (m Model) finished() bool {
	return m.result != nil
}

func (m Model) step() Model {
	if err := m.ctx.Err(); err != nil {
		return m.finish(err)
	}
	rec, err := m.runner.Step(m.ctx)
	if err != nil && !errors.Is(err, sim.ErrFinished) {
		return m.finish(err)
	}
	if err == nil {
		m.last = rec
	}
	if m.runner.Done() {
		return m.finish(nil)
	}
	return m
}

func (m Model) finish(runErr error) Model {
	res, err := m.runner.Finish(context.WithoutCancel(m.ctx), runErr)
	m.result, m.err = res, err
	return m
}

func clampInterval(d time.Duration) time.Duration {
	return min(max(d, minInterval), maxInterval)
}

// ═══════════════════════════════════════════════════════════════════════════════
// VIEW
// ═══════════════════════════════════════════════════════════════════════════════

// View implements tea.Model.
func (m Model) View() string {
	snap := m.runner.Component().Organism().Snapshot()
	sc := m.runner.Scenario()

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("%s · %s", snap.Name, sc.Name)))
	b.WriteString("  ")
	b.WriteString(m.styles.Status.Render(fmt.Sprintf("tick %d/%d  delivered %d  every %s", m.runner.Tick(), sc.Ticks, m.last.Delivered, m.interval)))
	switch {
	case m.err != nil:
		b.WriteString("  " + m.styles.Error.Render("failed: "+m.err.Error()))
	case m.finished():
		b.WriteString("  " + m.styles.Status.Render("completed"))
	case m.paused:
		b.WriteString("  " + m.styles.Paused.Render("PAUSED"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Section.Render("Emitting"))
	b.WriteString("\n")
	b.WriteString(m.renderEmitting(snap))
	b.WriteString("\n")

	if len(snap.Drives) > 0 {
		b.WriteString(m.styles.Section.Render("Drives"))
		b.WriteString("\n")
		for _, d := range snap.Drives {
			b.WriteString(m.renderBar(d.Name, d.Value, d.Normalized))
		}
	}
	if len(snap.Emotions) > 0 {
		b.WriteString(m.styles.Section.Render("Emotions"))
		b.WriteString("\n")
		for _, e := range snap.Emotions {
			b.WriteString(m.renderBar(e.Name, e.Value, e.Normalized))
		}
	}

	b.WriteString(m.styles.Section.Render("Associations"))
	b.WriteString("\n")
	b.WriteString(m.associationTable(snap).View())
	b.WriteString("\n")
	if len(m.last.Formed) > 0 {
		b.WriteString(m.styles.Status.Render("formed: " + strings.Join(m.last.Formed, ", ")))
		b.WriteString("\n")
	}
	if len(m.last.Removed) > 0 {
		b.WriteString(m.styles.Status.Render("removed: " + strings.Join(m.last.Removed, ", ")))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Footer.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) renderEmitting(snap organism.Snapshot) string {
	if len(snap.Emitting) == 0 {
		return m.styles.Idle.Render("idle") + "\n"
	}
	chips := make([]string, len(snap.Emitting))
	for i, name := range snap.Emitting {
		chips[i] = m.styles.Action.Render(name)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...) + "\n"
}

func (m Model) renderBar(name string, value, normalized float64) string {
	return fmt.Sprintf("%s %s %6.3f\n", m.styles.Label.Render(name), m.bar.ViewAs(normalized), value)
}

const (
	colID       = "id"
	colContext  = "context"
	colAction   = "action"
	colStrength = "strength"
	colPhase    = "phase"
)

func (m Model) associationTable(snap organism.Snapshot) table.Model {
	rows := make([]table.Row, 0, len(snap.Associations))
	for _, a := range snap.Associations {
		rows = append(rows, table.NewRow(table.RowData{
			colID:       a.ID,
			colContext:  a.Key.Context,
			colAction:   a.Key.Action,
			colStrength: fmt.Sprintf("%.3f", a.Strength),
			colPhase:    a.Phase.String(),
		}))
	}
	return table.New([]table.Column{
		table.NewColumn(colID, "ID", 5),
		table.NewColumn(colContext, "Context", 14),
		table.NewColumn(colAction, "Action", 14),
		table.NewColumn(colStrength, "Strength", 10),
		table.NewColumn(colPhase, "Phase", 14),
	}).
		WithRows(rows).
		WithBaseStyle(lipgloss.NewStyle().Align(lipgloss.Left)).
		WithPageSize(8)
}
