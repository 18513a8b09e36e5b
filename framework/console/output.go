package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// taskWidth is the width of a task line, dots included.
const taskWidth = 72

// Output writes the styled status lines of a command.
//
//	  INFO  Configuration cached successfully.
//	  2024_01_01_000000_create_users_table ............ 12ms DONE
type Output struct {
	w io.Writer
}

// NewOutput wraps w.
func NewOutput(w io.Writer) *Output { return &Output{w: w} }

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer { return o.w }

func (o *Output) badge(label, format string, args ...any) {
	fmt.Fprintf(o.w, "\n  %s  %s\n\n", label, fmt.Sprintf(format, args...))
}

func (o *Output) Info(format string, args ...any)  { o.badge("INFO", format, args...) }
func (o *Output) Warn(format string, args ...any)  { o.badge("WARN", format, args...) }
func (o *Output) Error(format string, args ...any) { o.badge("ERROR", format, args...) }

// Line writes a plain indented line.
func (o *Output) Line(format string, args ...any) {
	fmt.Fprintf(o.w, "  %s\n", fmt.Sprintf(format, args...))
}

// Task writes "  <name> ....... <detail> <status>".
func (o *Output) Task(name, detail, status string) {
	right := status
	if detail != "" {
		right = detail + " " + status
	}
	dots := taskWidth - utf8.RuneCountInString(name) - utf8.RuneCountInString(right) - 2
	if dots < 3 {
		dots = 3
	}
	fmt.Fprintf(o.w, "  %s %s %s\n", name, strings.Repeat(".", dots), right)
}

// Table writes rows under headers in aligned columns.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\n", strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\n", strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
