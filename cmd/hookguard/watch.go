// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// refreshInterval paces the watch view. State changes at hook granularity,
// so sub-second refresh buys nothing.
const refreshInterval = time.Second

// --- bubbletea messages ---

type (
	tickMsg    time.Time
	refreshMsg struct {
		view string
		err  error
	}
)

// watchModel is the bubbletea model behind `hookguard status --watch`.
type watchModel struct {
	rt      *runtime
	spinner spinner.Model
	view    string
	err     error
}

func newWatchModel(rt *runtime) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return watchModel{rt: rt, spinner: sp}
}

func runStatusWatch(rt *runtime) error {
	_, err := tea.NewProgram(newWatchModel(rt)).Run()
	return err
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// refresh re-reads state off the Update loop.
func (m watchModel) refresh() tea.Msg {
	view, err := renderStatus(m.rt)
	return refreshMsg{view: view, err: err}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.refresh, tick())
	case refreshMsg:
		m.view = msg.view
		m.err = msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return alertStyle.Render("status unavailable: "+m.err.Error()) + "\n" +
			dimStyle.Render("q to quit")
	}
	if m.view == "" {
		return m.spinner.View() + " loading state…"
	}
	return m.view + "\n" + dimStyle.Render(m.spinner.View()+" watching — q to quit")
}
