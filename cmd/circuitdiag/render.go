// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/circuitdiag/internal/dispatch"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	maxRuleWidth = 120
)

// renderer formats reports for a terminal. Styles degrade to plain text when
// the output is not a terminal.
type renderer struct {
	width  int
	ok     lipgloss.Style
	failed lipgloss.Style
	bold   lipgloss.Style
	faint  lipgloss.Style
}

func newRenderer(w io.Writer) renderer {
	r := lipgloss.NewRenderer(w)
	width := defaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}
	return renderer{
		width:  min(width, maxRuleWidth),
		ok:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		failed: r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		bold:   r.NewStyle().Bold(true),
		faint:  r.NewStyle().Faint(true),
	}
}

func (r renderer) report(w io.Writer, rep *dispatch.Report) error {
	var b strings.Builder
	if rep.NotFound {
		b.WriteString(i18n.T("dispatch.not_found", rep.CircuitID) + "\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString(r.bold.Render(rep.CircuitID) + " " + r.faint.Render(rep.RunID) + "\n")
	if c := rep.Contact; c != nil {
		var parts []string
		for _, p := range []string{c.Name, c.Email, c.Phone} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", i18n.T("dispatch.contact"), strings.Join(parts, ", "))
		if c.Notes != "" {
			b.WriteString("  " + c.Notes + "\n")
		}
	}

	rule := r.faint.Render(strings.Repeat("-", r.width)) + "\n"
	for _, res := range rep.Results() {
		b.WriteString(rule)
		status := r.ok.Render("[" + i18n.T("dispatch.status_ok") + "]")
		if !res.OK() {
			status = r.failed.Render("[" + i18n.T("dispatch.status_error") + "]")
		}
		fmt.Fprintf(&b, "%s %s $ %s %s\n", status, r.bold.Render(res.DeviceLabel), res.Command,
			r.faint.Render("("+res.Elapsed.Round(time.Millisecond).String()+")"))
		if res.Truncated {
			b.WriteString(r.faint.Render(i18n.T("dispatch.truncated")) + "\n")
		}
		if out := strings.TrimRight(res.Output, "\n"); out != "" {
			b.WriteString(out + "\n")
		}
	}
	b.WriteString(rule)
	b.WriteString(i18n.T("dispatch.summary", len(rep.Results()), rep.Devices(), rep.Elapsed.Round(time.Millisecond)) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}
