// Package output renders call results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/warden/internal/log"
)

// Formats.
const (
	Nested = "nested"
	JSON   = "json"
	YAML   = "yaml"
	Raw    = "raw"
	Text   = "txt"
	Quiet  = "quiet"
)

// Formats lists every supported format.
var Formats = []string{Nested, JSON, YAML, Raw, Text, Quiet}

// Options tune rendering.
type Options struct {
	// Color enables terminal styling in the nested format.
	Color bool
}

// Known reports whether format is supported.
func Known(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Render writes data to w in format. Unknown formats fall back to nested.
func Render(w io.Writer, format string, data any, opts Options) error {
	switch format {
	case Nested, "":
		return renderNested(w, data, opts)
	case JSON:
		b, err := json.MarshalIndent(normalize(data), "", "    ")
		if err != nil {
			return fmt.Errorf("render json: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(normalize(data)); err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}
		return enc.Close()
	case Raw:
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	case Text:
		return renderText(w, data)
	case Quiet:
		return nil
	default:
		log.WithComponent("output").Warn("unknown output format, using nested", "format", format)
		return renderNested(w, data, opts)
	}
}

// renderText writes one "key: value" line per top-level key.
func renderText(w io.Writer, data any) error {
	m, ok := normalize(data).(map[string]any)
	if !ok {
		_, err := fmt.Fprintln(w, scalarText(normalize(data)))
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\n", k, scalarText(m[k])); err != nil {
			return err
		}
	}
	return nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	case nil:
		return "null"
	default:
		return strings.TrimRight(fmt.Sprint(t), "\n")
	}
}
