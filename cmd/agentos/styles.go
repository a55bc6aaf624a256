// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

func renderToolExecution(rec types.ToolUseRecord) string {
	mark := "✓"
	style := dimStyle
	if rec.IsError {
		mark = "✗"
		style = errorStyle
	}
	return style.Render(fmt.Sprintf("  %s %s__%s (%dms)", mark, rec.ServerName, rec.ToolName, rec.DurationMs))
}

// renderResponse formats a processed turn for the terminal.
func renderResponse(agentName string, resp *agent.ProcessResponse) string {
	var b strings.Builder
	for _, rec := range resp.ToolExecutions {
		b.WriteString(renderToolExecution(rec) + "\n")
	}
	b.WriteString(assistantStyle.Render(agentName+":") + " " + resp.Message.Content + "\n")
	if resp.GuardrailNotice != "" {
		b.WriteString(noticeStyle.Render("guardrail: "+resp.GuardrailNotice) + "\n")
	}
	if resp.SessionUpdates.Status.Terminal() {
		b.WriteString(dimStyle.Render("session "+string(resp.SessionUpdates.Status)) + "\n")
	}
	return b.String()
}
