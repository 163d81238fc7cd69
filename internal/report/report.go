// Package report renders run results for headless commands.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rickchristie/govner/mayatdd/internal/runner"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
	"github.com/rickchristie/govner/mayatdd/internal/util"
)

// Options controls what the table shows.
type Options struct {
	Title     string
	ShowTests bool // One row per test, not only per container
	Color     bool // Colored table style by overall result
}

// StatusText returns the upper-case label of a status.
func StatusText(s suite.Status) string {
	switch s {
	case suite.StatusSuccess:
		return "PASS"
	case suite.StatusFail:
		return "FAIL"
	case suite.StatusError:
		return "ERROR"
	case suite.StatusSkipped:
		return "SKIP"
	default:
		return "NOT RUN"
	}
}

// Table renders the tree as a table with one row per container (and per test
// with ShowTests), followed by a TOTAL footer from the summary.
func Table(m *tree.Model, summary runner.Summary, opts Options) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}
	t.AppendHeader(table.Row{"Name", "Duration", "Tests", "Passed", "Failed", "Errors", "Skipped", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
	})

	// The root is the unnamed collection of everything; its totals are the footer
	for _, child := range m.Children(m.Root()) {
		addRows(t, m, child, 0, opts.ShowTests)
	}

	switch {
	case opts.Color && !summary.OK():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case opts.Color && summary.Skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case opts.Color:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleLight)
	}
	// Keep durations like "1.5s" readable in the footer
	t.Style().Format.Footer = text.FormatDefault

	t.AppendFooter(table.Row{
		"TOTAL",
		util.FormatDuration(summary.Elapsed),
		summary.Total,
		summary.Success,
		summary.Fail,
		summary.Error,
		summary.Skipped,
		StatusText(m.Status(m.Root())),
	})

	t.Render()
	return buf.String()
}

func addRows(t table.Writer, m *tree.Model, id tree.NodeID, depth int, showTests bool) {
	isLeaf := m.Kind(id) != suite.KindSuite
	if isLeaf && !showTests {
		return
	}

	name := strings.Repeat("  ", depth) + m.Name(id)
	if isLeaf {
		t.AppendRow(table.Row{name, util.FormatDuration(m.Elapsed(id)), "", "", "", "", "", StatusText(m.Status(id))})
		return
	}

	c := m.Counts(id)
	t.AppendRow(table.Row{
		name,
		util.FormatDuration(m.Elapsed(id)),
		c.Total,
		c.Success,
		c.Fail,
		c.Error,
		c.Skipped,
		StatusText(m.Status(id)),
	})
	for _, child := range m.Children(id) {
		addRows(t, m, child, depth+1, showTests)
	}
}

// Failures lists every failed or errored result with its detail, in the
// order the tests ran. Returns "" when there is nothing to report.
func Failures(summary runner.Summary) string {
	failed := summary.Failed()
	if len(failed) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range failed {
		fmt.Fprintf(&b, "%s: %s\n", StatusText(r.Status), r.Identity)
		if r.Detail != "" {
			for _, line := range strings.Split(strings.TrimRight(r.Detail, "\n"), "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// List renders discovered identities, one per line, for the list command.
func List(s *suite.Suite) string {
	var b strings.Builder
	for _, leaf := range s.Leaves() {
		if leaf.Kind == suite.KindImportFailure {
			if leaf.MarkerStatus() == suite.StatusSkipped {
				fmt.Fprintf(&b, "%s (skipped: %v)\n", leaf.ID(), leaf.Err)
				continue
			}
			fmt.Fprintf(&b, "%s (import failed: %v)\n", leaf.ID(), leaf.Err)
			continue
		}
		b.WriteString(string(leaf.ID()) + "\n")
	}
	return b.String()
}
