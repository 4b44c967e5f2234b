package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	numberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newTopCommand(o *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Watch live objects while a ticket workload runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.Unsupported(errors.PhaseRuntime, "top needs a terminal; use leaks instead")
			}
			if o.tracker == nil {
				o.tracker = atom.NewTracker()
			}
			return o.runTop(cmd.Context(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "workload and refresh interval")
	return cmd
}

func (o *options) runTop(ctx context.Context, interval time.Duration) error {
	o.serveMetrics(ctx)
	s, err := o.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	_, ref, err := publishCounter(ctx, o, s)
	if err != nil {
		return err
	}

	m := newTopModel(ctx, o, s, ref, interval)
	defer m.releaseAll()
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

type topModel struct {
	ctx      context.Context
	o        *options
	s        *session
	counter  *atom.Ref[*binder.Proxy]
	interval time.Duration

	table   table.Model
	kept    []*atom.Ref[binder.IBinder]
	leakOne bool
	paused  bool
	dead    bool
	mark    uint64
	calls   int
	total   string
	err     error
}

type tickMsg time.Time

type workMsg struct {
	ticket *atom.Ref[binder.IBinder]
	total  value.Value
	err    error
}

func newTopModel(ctx context.Context, o *options, s *session, counter *atom.Ref[*binder.Proxy], interval time.Duration) *topModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Type", Width: 36},
			{Title: "Live", Width: 8},
		}),
		table.WithHeight(10),
	)
	return &topModel{
		ctx:      ctx,
		o:        o,
		s:        s,
		counter:  counter,
		interval: interval,
		table:    t,
		mark:     o.tracker.Generation(),
		total:    "0",
	}
}

func (m *topModel) Init() tea.Cmd {
	return m.tick()
}

func (m *topModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// work takes a ticket and adds one to the counter.
func (m *topModel) work() tea.Msg {
	ctx, cancel := m.o.callContext(m.ctx)
	defer cancel()
	px := m.counter.Get()
	total, err := binder.Call(ctx, px, codeAdd, value.Int32(1))
	if err != nil {
		return workMsg{err: err}
	}
	t, err := takeTicket(ctx, px, "top")
	return workMsg{ticket: t, total: total, err: err}
}

func (m *topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "l":
			m.leakOne = true
		case "r":
			m.releaseKept()
		case "m":
			m.mark = m.o.tracker.MarkGeneration()
		case "k":
			if !m.dead {
				m.s.kill(errors.Unreachable(errors.PhaseTransport, "killed from top"))
				m.dead = true
			}
		}

	case tickMsg:
		m.refresh()
		if m.paused || m.dead {
			return m, m.tick()
		}
		return m, tea.Batch(m.tick(), m.work)

	case workMsg:
		m.err = msg.err
		if msg.err == nil {
			m.calls++
			m.total = msg.total.String()
		}
		if msg.ticket != nil {
			if m.leakOne {
				m.kept = append(m.kept, msg.ticket)
				m.leakOne = false
			} else {
				msg.ticket.Release()
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *topModel) refresh() {
	counts := m.o.tracker.CountByType(m.mark)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	rows := make([]table.Row, 0, len(types))
	for _, t := range types {
		rows = append(rows, table.Row{t, strconv.Itoa(counts[t])})
	}
	m.table.SetRows(rows)
}

func (m *topModel) releaseKept() {
	for _, t := range m.kept {
		t.Release()
	}
	m.kept = nil
}

func (m *topModel) releaseAll() {
	m.releaseKept()
	if m.counter != nil {
		m.counter.Release()
		m.counter = nil
	}
}

func (m *topModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("binderctl top"))
	b.WriteString(" ")
	b.WriteString(m.o.cfg.Transport.Kind)
	if m.paused {
		b.WriteString(helpStyle.Render(" (paused)"))
	}
	b.WriteString("\n\n")

	stat := func(label string, v any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", label)))
		b.WriteString(numberStyle.Render(fmt.Sprint(v)))
		b.WriteString("\n")
	}
	stat("calls", m.calls)
	stat("counter", m.total)
	stat("live atoms", m.o.tracker.Live())
	stat("server exports", m.s.server.Exports())
	stat("client proxies", m.s.client.Proxies())
	stat("kept tickets", len(m.kept))
	stat("peer alive", m.s.client.IsPeerAlive())
	b.WriteString("\n")

	b.WriteString(labelStyle.Render(fmt.Sprintf("live since generation %d", m.mark)))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("space pause • l leak a ticket • r release kept • m mark • k kill server • q quit"))
	return b.String()
}
