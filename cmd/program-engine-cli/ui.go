// Package main provides UI utilities for the Program Engine CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI provides user-friendly output utilities.
type UI struct {
	out       io.Writer
	progress  *mpb.Progress
	commitBar *mpb.Bar
	spin      *spinner.Spinner
	noColor   bool
	jsonMode  bool
	live      bool
}

// NewUI creates a new UI writing to out. Spinners and progress bars are only
// drawn when out is an interactive terminal.
func NewUI(out io.Writer, jsonMode, noColor bool) *UI {
	ui := &UI{
		out:      out,
		noColor:  noColor,
		jsonMode: jsonMode,
		live:     !jsonMode && out == os.Stdout && IsTerminal(),
	}
	if ui.live {
		ui.progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	}
	return ui
}

// Close stops any spinner and waits for progress bars to finish.
func (ui *UI) Close() {
	ui.StopSpinner()
	if ui.commitBar != nil && !ui.commitBar.Completed() {
		ui.commitBar.Abort(false)
	}
	if ui.progress != nil {
		ui.progress.Wait()
	}
}

func (ui *UI) printf(c *color.Color, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if ui.noColor {
		fmt.Fprintf(ui.out, "%s %s\n", symbol, msg)
		return
	}
	c.Fprintf(ui.out, "%s %s\n", symbol, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.printf(color.New(color.FgGreen), "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.printf(color.New(color.FgRed), "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.printf(color.New(color.FgYellow), "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.printf(color.New(color.FgCyan), "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.printf(color.New(color.FgBlue), "→", format, args...)
}

// StartSpinner shows an indeterminate spinner, or updates its message when
// one is already running.
func (ui *UI) StartSpinner(message string) {
	if !ui.live {
		return
	}
	if ui.spin == nil {
		ui.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		ui.spin.Suffix = " " + message
		ui.spin.Start()
		return
	}
	ui.spin.Suffix = " " + message
}

// StopSpinner stops the spinner if one is running.
func (ui *UI) StopSpinner() {
	if ui.spin != nil {
		ui.spin.Stop()
		ui.spin = nil
	}
}

// ProgressBar creates a new progress bar. It returns nil when output is not
// live.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	if ui.progress == nil {
		return nil
	}

	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
}

// Table prints a formatted table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	border := func(left, mid, right string) {
		line, fill := left, "─"
		if ui.noColor {
			line, fill = "+", "-"
			mid, right = "+", "+"
		}
		for i, width := range widths {
			line += strings.Repeat(fill, width+2)
			if i < len(widths)-1 {
				line += mid
			}
		}
		line += right
		if ui.noColor {
			fmt.Fprintln(ui.out, line)
			return
		}
		color.New(color.FgCyan, color.Bold).Fprintln(ui.out, line)
	}
	sep := "│"
	if ui.noColor {
		sep = "|"
	}
	printRow := func(cells []string) {
		var b strings.Builder
		b.WriteString(sep)
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(&b, " %s%s %s", cell, strings.Repeat(" ", widths[i]-len([]rune(cell))), sep)
		}
		fmt.Fprintln(ui.out, b.String())
	}

	border("┌", "┬", "┐")
	printRow(headers)
	border("├", "┼", "┤")
	for _, row := range rows {
		printRow(row)
	}
	border("└", "┴", "┘")
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	if ui.noColor {
		fmt.Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	} else {
		color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	}
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %s: %v\n", key, value)
	} else {
		color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
		fmt.Fprintf(ui.out, "%v\n", value)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// FormatBytes formats bytes in a human-readable way.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
