package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// statusf prints a status message to w unless quiet mode is set.
func statusf(w io.Writer, quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Err, cc.Flags.Quiet, format, args...)
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// formatUntil renders the time remaining until t, or "expired".
func formatUntil(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := t.Sub(now)
	if d <= 0 {
		return "expired"
	}

	return "in " + d.Truncate(time.Second).String()
}

// yesNo renders a boolean column.
func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

// printTable writes aligned columns to w. headers and each row must have
// the same length. Headers are bold when color is enabled.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold)
	fmt.Fprintln(w, bold.Sprint(strings.TrimRight(padRow(headers, widths), " ")))

	for _, row := range rows {
		fmt.Fprintln(w, strings.TrimRight(padRow(row, widths), " "))
	}
}

// padRow joins cells padded to their column widths.
func padRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	return strings.Join(parts, "  ")
}

// render writes v in the selected output format. Table output uses headers
// and rows; JSON and YAML serialize v itself.
func (cc *CLIContext) render(v any, headers []string, rows [][]string) error {
	switch cc.Flags.Output {
	case outputJSON:
		return writeJSON(cc.Out, v)
	case outputYAML:
		return writeYAML(cc.Out, v)
	default:
		printTable(cc.Out, headers, rows)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// writeYAML renders v as YAML. Values go through JSON first so field names
// follow the json tags of the API types.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return enc.Close()
}
