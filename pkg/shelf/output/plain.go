package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"text/tabwriter"
)

// PlainFormatter formats output as a simple aligned table without styling.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprint(tw, "ID\tTITLE\tYEAR\tPATH\n"); err != nil {
		return err
	}
	for _, g := range r.Games {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", g.ID, g.Title, year(g.Year), g.Path); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// PathsFormatter writes one game path per line.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, g := range r.Games {
		w.WriteString(g.Path)
		w.WriteByte('\n')
	}
	return nil
}

// CSVFormatter formats output as comma-separated values with proper quoting.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"ID", "TITLE", "YEAR", "PATH"}); err != nil {
		return err
	}
	for _, g := range r.Games {
		if err := writer.Write([]string{strconv.FormatInt(g.ID, 10), g.Title, year(g.Year), g.Path}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func year(y int) string {
	if y == 0 {
		return "-"
	}
	return strconv.Itoa(y)
}

func init() {
	Register("plain", func() Formatter { return &PlainFormatter{} })
	Register("table", func() Formatter { return &PlainFormatter{} })
	Register("paths", func() Formatter { return &PathsFormatter{} })
	Register("csv", func() Formatter { return &CSVFormatter{} })
}

var (
	_ Formatter = (*PlainFormatter)(nil)
	_ Formatter = (*PathsFormatter)(nil)
	_ Formatter = (*CSVFormatter)(nil)
)
