// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
)

// chatTranscriptLines bounds how much of the conversation View renders.
const chatTranscriptLines = 200

// turnProcessor is the slice of agent.Loop the chat model needs.
type turnProcessor interface {
	ProcessMessage(ctx context.Context, req agent.ProcessRequest) (*agent.ProcessResponse, error)
}

type turnDoneMsg struct {
	userMsg string
	resp    *agent.ProcessResponse
}

type turnErrMsg struct{ err error }

type chatModel struct {
	ctx       context.Context
	processor turnProcessor
	session   *localSession

	input   textinput.Model
	spinner spinner.Model
	busy    bool
	lines   []string
	quit    bool
}

func newChatModel(ctx context.Context, p turnProcessor, sess *localSession) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, /quit to leave"
	ti.CharLimit = 4096
	ti.Width = 72
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		ctx:       ctx,
		processor: p,
		session:   sess,
		input:     ti,
		spinner:   sp,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case turnDoneMsg:
		m.busy = false
		m.session.apply(msg.userMsg, msg.resp)
		m.appendBlock(renderResponse(m.session.agent.Name, msg.resp))
		if m.session.closed() {
			m.input.Blur()
		}
		return m, nil
	case turnErrMsg:
		m.busy = false
		m.appendBlock(errorStyle.Render("error: " + msg.err.Error()))
		return m, nil
	}
	return m, nil
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quit = true
		return m, tea.Quit
	case tea.KeyEnter:
		if m.busy || m.session.closed() {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if text == "/quit" || text == "/exit" {
			m.quit = true
			return m, tea.Quit
		}
		m.input.Reset()
		m.busy = true
		m.appendBlock(userStyle.Render("you:") + " " + text)
		return m, tea.Batch(m.spinner.Tick, processTurnCmd(m.ctx, m.processor, m.session, text))
	}

	if m.session.closed() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) appendBlock(block string) {
	m.lines = append(m.lines, strings.Split(strings.TrimRight(block, "\n"), "\n")...)
	if over := len(m.lines) - chatTranscriptLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m chatModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.session.agent.Name))
	b.WriteString(dimStyle.Render("  session " + m.session.id))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString(line + "\n")
	}
	if len(m.lines) > 0 {
		b.WriteString("\n")
	}

	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " thinking...\n")
	case m.session.closed():
		b.WriteString(boxStyle.Render(fmt.Sprintf("Session %s. Press esc to exit.", m.session.state.Status)) + "\n")
	default:
		b.WriteString(m.input.View() + "\n")
	}
	return b.String()
}

// --- tea.Cmd factories ---

func processTurnCmd(ctx context.Context, p turnProcessor, sess *localSession, text string) tea.Cmd {
	req := sess.request(text)
	return func() tea.Msg {
		resp, err := p.ProcessMessage(ctx, req)
		if err != nil {
			return turnErrMsg{err: err}
		}
		return turnDoneMsg{userMsg: text, resp: resp}
	}
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent interactively",
		Long:  "Open a terminal chat with an agent definition. Session state is kept locally and the chat stops accepting input once the session ends or escalates.",
		RunE:  runChat,
	}

	cmd.Flags().StringP("file", "f", "", "agent definition file (YAML)")
	cmd.Flags().String("session", "", "session id recorded in the audit log (default random)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	sessionID, _ := cmd.Flags().GetString("session")

	af, err := config.LoadAgentFile(file)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Logs would tear the alt screen; keep only errors while the TUI runs.
	if err := installLogger(cmd.ErrOrStderr(), "error", cfg.Logging.Format); err != nil {
		return err
	}

	rt, err := runtimeFactory(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	m := newChatModel(cmd.Context(), rt.Loop, newLocalSession(af, sessionID))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
