// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/cvsm/pkg/core/cvsm/gradcheck"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// TableWithReds is a table where rows can be marked in red.
type TableWithReds struct {
	Table *lgtable.Table
	Count int
	Reds  map[int]bool
}

// Row appends a row, in red if isRed is set.
func (t *TableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.Reds[t.Count] = true
	}
	t.Table.Row(row...)
	t.Count++
}

func newPlainTableWithReds(alignments ...lipgloss.Position) *TableWithReds {
	t := &TableWithReds{
		Reds: make(map[int]bool),
	}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if t.Reds[row] {
				s = redRowStyle
			} else if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	return t
}

func (s *caseSummary) status() string {
	switch {
	case s.failed() && s.unexpectedErr != nil:
		return fmt.Sprintf("error: %v", s.unexpectedErr)
	case s.failed() && s.expectErr != nil:
		return fmt.Sprintf("FAILED: expected %q", s.expectErr)
	case s.failed():
		return fmt.Sprintf("FAILED in %d trials", s.failedTrials)
	case s.expectErr != nil:
		return "not differentiable, as expected"
	default:
		return "ok"
	}
}

// renderReport returns the per-case table followed by the summary table.
func renderReport(config gradcheck.Config, summaries []*caseSummary) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Gradient checks"))
	sb.WriteString("\n")

	table := newPlainTableWithReds(lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	table.Table.Headers("Case", "Type", "Trials", "Checks", "Max error", "Status")
	var numChecks int
	for _, s := range summaries {
		maxError := "-"
		if s.numChecks > 0 {
			maxError = fmt.Sprintf("%.2e", s.maxError)
		}
		table.Row(s.failed(), s.name, s.nodeType.String(),
			humanize.Comma(int64(s.trials)), humanize.Comma(int64(s.numChecks)), maxError, s.status())
		numChecks += s.numChecks
	}
	sb.WriteString(table.Table.Render())
	sb.WriteString("\n")

	failed := numFailedCases(summaries)
	summary := newPlainTableWithReds(lipgloss.Right, lipgloss.Left)
	summary.Row(false, "epsilon", fmt.Sprintf("%g", config.Epsilon))
	summary.Row(false, "tolerance", fmt.Sprintf("%g", config.Tolerance))
	summary.Row(false, "# derivatives checked", humanize.Comma(int64(numChecks)))
	summary.Row(failed > 0, "# cases failed", fmt.Sprintf("%s of %s",
		humanize.Comma(int64(failed)), humanize.Comma(int64(len(summaries)))))
	sb.WriteString(summary.Table.Render())
	return sb.String()
}
