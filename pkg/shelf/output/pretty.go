package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	if len(r.Blacklist) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatBlacklist(r))
	}
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Library:"), ValueStyle.Render(r.Root)),
	}

	var info []string
	if r.LastScan != nil {
		info = append(info, fmt.Sprintf("%s %s", LabelStyle.Render("Last scan:"),
			ValueStyle.Render(fmt.Sprintf("%s, %d new, %d blacklisted",
				humanize.Time(r.LastScan.FinishedAt), r.LastScan.NewGames, r.LastScan.Blacklisted))))
	} else {
		info = append(info, MutedStyle.Render("never scanned"))
	}
	info = append(info, f.formatDaemonStatus(r.DaemonUp, r.Watching))
	lines = append(lines, strings.Join(info, "  "))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatDaemonStatus(daemonUp, watching bool) string {
	if !daemonUp {
		return MutedStyle.Render("daemon: off")
	}
	if watching {
		return SuccessStyle.Render("daemon: watching")
	}
	return LabelStyle.Render("daemon: ") + ValueStyle.Render("up")
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Games) == 0 {
		return MutedStyle.Render("  No games detected") + "\n"
	}

	titleWidth := len("TITLE")
	for _, g := range r.Games {
		titleWidth = max(titleWidth, lipgloss.Width(g.Title))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("TITLE", titleWidth)),
		TableHeaderStyle.Render("YEAR"),
		TableHeaderStyle.Render("FILE")))

	for _, g := range r.Games {
		year := "    "
		if g.Year > 0 {
			year = fmt.Sprintf("%4d", g.Year)
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			TitleStyle.Render(padRight(g.Title, titleWidth)),
			MutedStyle.Render(year),
			ValueStyle.Render(g.File)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatBlacklist(r *Result) string {
	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render("  BLACKLISTED"))
	sb.WriteString("\n")
	for _, b := range r.Blacklist {
		sb.WriteString(fmt.Sprintf("  %s  %s\n", ErrorStyle.Render(b.Path), MutedStyle.Render(b.Reason)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Games:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Games)))),
	}
	if len(r.Blacklist) > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Blacklisted:"),
			ValueStyle.Render(fmt.Sprintf("%d", len(r.Blacklist)))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(strings.Join(parts, "  "))
}

// padRight pads a string with spaces on the right to the given display width.
func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
