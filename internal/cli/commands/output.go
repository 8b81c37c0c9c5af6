package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output writes command results in the configured format.
type Output struct {
	w      io.Writer
	format string
}

// NewOutput creates an Output for format (table, yaml or json).
func NewOutput(w io.Writer, format string) *Output {
	return &Output{w: w, format: format}
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer { return o.w }

// Render writes v as JSON or YAML, or calls fill to build a table.
func (o *Output) Render(v any, fill func(t table.Writer)) error {
	switch o.format {
	case "json":
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(o.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := table.NewWriter()
		t.SetOutputMirror(o.w)
		t.SetStyle(table.StyleLight)
		fill(t)
		t.Render()
		return nil
	}
}

// Printf writes a status line. Structured formats get no status lines so
// their output stays parseable.
func (o *Output) Printf(format string, args ...any) {
	if o.format == "json" || o.format == "yaml" {
		return
	}
	_, _ = fmt.Fprintf(o.w, format, args...)
}
