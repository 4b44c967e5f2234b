package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/binderkit/component"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

var (
	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	o        *options
	obj      *wasmObject
	err      error
	filename string
	result   string
	funcs    []*component.Signature
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, o *options, obj *wasmObject, filename string) *interactiveModel {
	m := &interactiveModel{
		ctx:      ctx,
		o:        o,
		obj:      obj,
		filename: filename,
		state:    stateSelectFunc,
	}
	for _, name := range obj.mod.Functions() {
		sig, _ := obj.mod.Signature(name)
		m.funcs = append(m.funcs, sig)
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = p.TypeName
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction calls the selected function through the proxy.
func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	pairs := make([]value.Pair, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), f.Params[i].Type)
		if err != nil {
			return callResultMsg{err: errors.BadArgument("argument "+f.Params[i].Name, err)}
		}
		pairs[i] = value.Pair{Key: value.String(f.Params[i].Name), Value: v}
	}
	args := value.Undefined()
	if len(pairs) > 0 {
		args = value.NewMap(pairs...)
	}

	ctx, cancel := m.o.callContext(m.ctx)
	defer cancel()
	result, err := m.obj.Call(ctx, f.Name, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: result.String()}
}

func convertArg(s string, t wit.Type) (value.Value, error) {
	s = strings.TrimSpace(s)
	switch t.(type) {
	case wit.Bool:
		b, err := strconv.ParseBool(s)
		return value.Bool(b), err
	case wit.F32, wit.F64:
		f, err := strconv.ParseFloat(s, 64)
		return value.Float64(f), err
	case wit.Char:
		r := []rune(s)
		if len(r) != 1 {
			return value.Undefined(), errors.InvalidInput(errors.PhaseParse, "char needs exactly one character")
		}
		return value.Int32(r[0]), nil
	default:
		n, err := strconv.ParseInt(s, 0, 64)
		return value.Int64(n), err
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Object"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].TypeName))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f *component.Signature) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name + ": " + typeStyle.Render(p.TypeName)
	}
	result := ""
	if len(f.Results) > 0 {
		names := make([]string, len(f.Results))
		for i, r := range f.Results {
			names[i] = witTypeStr(r)
		}
		result = " -> " + typeStyle.Render(strings.Join(names, ", "))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runWasmInteractive(ctx context.Context, o *options, obj *wasmObject, filename string) error {
	p := tea.NewProgram(newInteractiveModel(ctx, o, obj, filename), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
