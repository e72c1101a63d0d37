package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// ProgressMsg reports the bytes written so far.
type ProgressMsg struct {
	Written int64
}

// DoneMsg ends the download view.
type DoneMsg struct {
	Target  string
	Written int64
	Err     error
}

// DownloadModel shows a running download. The payload size is not known
// up front for directories, so progress is an indeterminate bar plus the
// byte count and throughput.
type DownloadModel struct {
	spinner   spinner.Model
	name      string
	written   int64
	startTime time.Time
	width     int

	cancel   func()
	stopping bool

	done   bool
	target string
	err    error
}

// NewDownloadModel creates a view for downloading name. cancel is called
// when the user interrupts; the view stays up until DoneMsg arrives.
func NewDownloadModel(name string, cancel func()) DownloadModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return DownloadModel{
		spinner:   s,
		name:      name,
		startTime: time.Now(),
		width:     80,
		cancel:    cancel,
	}
}

// Init starts the spinner.
func (m DownloadModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the download view.
func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopping && m.cancel != nil {
				m.cancel()
			}
			m.stopping = true
		}
		return m, nil

	case ProgressMsg:
		m.written = msg.Written
		return m, nil

	case DoneMsg:
		m.done = true
		m.target = msg.Target
		m.err = msg.Err
		if msg.Written > 0 {
			m.written = msg.Written
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the download view.
func (m DownloadModel) View() string {
	var b strings.Builder
	elapsed := time.Since(m.startTime)

	if m.done {
		switch {
		case m.err != nil && m.stopping:
			b.WriteString(warningTextStyle.Render(fmt.Sprintf("  Download of %s cancelled", m.name)))
		case m.err != nil:
			b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Download failed: %v", m.err)))
		default:
			b.WriteString(successTextStyle.Render(fmt.Sprintf("  Downloaded %s (%s in %s)",
				m.target, humanize.IBytes(uint64(m.written)), formatDuration(elapsed))))
		}
		b.WriteString("\n")
		return b.String()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	title := titleStyle.Render("  " + m.name)
	hint := mutedTextStyle.Render("[Ctrl+C to cancel]")
	if m.stopping {
		hint = warningTextStyle.Render("cancelling...")
	}
	spacing := contentWidth - lipgloss.Width(title) - lipgloss.Width(hint)
	if spacing < 1 {
		spacing = 1
	}
	b.WriteString(title + strings.Repeat(" ", spacing) + hint)
	b.WriteString("\n\n")

	b.WriteString(renderPulse(contentWidth, elapsed))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %s %s  %s/s  %s\n",
		m.spinner.View(),
		humanize.IBytes(uint64(m.written)),
		humanize.IBytes(uint64(rate(m.written, elapsed))),
		mutedTextStyle.Render(formatDuration(elapsed))))
	return b.String()
}

// Written returns the last reported byte count.
func (m DownloadModel) Written() int64 {
	return m.written
}

// IsDone returns true once DoneMsg has been received.
func (m DownloadModel) IsDone() bool {
	return m.done
}

// Error returns the error carried by DoneMsg.
func (m DownloadModel) Error() error {
	return m.err
}

// renderPulse renders an indeterminate progress bar whose pulse position
// follows elapsed time.
func renderPulse(width int, elapsed time.Duration) string {
	barWidth := width - 4
	if barWidth < 10 {
		barWidth = 10
	}

	position := int(elapsed.Seconds()*8) % (barWidth * 2)
	if position > barWidth {
		position = barWidth*2 - position
	}

	pulseWidth := barWidth / 5
	if pulseWidth < 3 {
		pulseWidth = 3
	}

	var bar strings.Builder
	bar.WriteString("  ")
	for i := range barWidth {
		dist := i - position
		if dist < 0 {
			dist = -dist
		}
		if dist < pulseWidth {
			bar.WriteString(progressFillStyle.Render("█"))
		} else {
			bar.WriteString(progressEmptyStyle.Render("░"))
		}
	}
	return bar.String()
}

func rate(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// ProgressWriter counts bytes written through it and reports them with
// send at most once per interval. It is not safe for concurrent use.
type ProgressWriter struct {
	w        io.Writer
	send     func(tea.Msg)
	interval time.Duration

	n    int64
	last time.Time
}

// NewProgressWriter wraps w. send is typically (*tea.Program).Send.
func NewProgressWriter(w io.Writer, send func(tea.Msg)) *ProgressWriter {
	return &ProgressWriter{w: w, send: send, interval: 100 * time.Millisecond}
}

// Write implements io.Writer.
func (p *ProgressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		p.send(ProgressMsg{Written: p.n})
	}
	return n, err
}

// Written returns the total bytes written.
func (p *ProgressWriter) Written() int64 {
	return p.n
}
