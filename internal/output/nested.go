package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const separator = "----------"

// palette styles the nested format. The zero palette renders plain text.
type palette struct {
	enabled bool
	key     lipgloss.Style
	str     lipgloss.Style
	number  lipgloss.Style
	literal lipgloss.Style
	dim     lipgloss.Style
}

func newPalette(color bool) palette {
	if !color {
		return palette{}
	}
	return palette{
		enabled: true,
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		str:     lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
		number:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		literal: lipgloss.NewStyle().Foreground(lipgloss.Color("#C678DD")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

func (p palette) paint(s lipgloss.Style, text string) string {
	if !p.enabled {
		return text
	}
	return s.Render(text)
}

func renderNested(w io.Writer, data any, opts Options) error {
	n := nester{p: newPalette(opts.Color)}
	lines := n.display(normalize(data), 0, "", nil)
	if len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

type nester struct {
	p palette
}

// display appends the lines for v. Mappings open with a separator when
// nested, list items are prefixed with "- " and nested collections inside a
// list are introduced by "|_".
func (n nester) display(v any, indent int, prefix string, out []string) []string {
	pad := strings.Repeat(" ", indent)
	switch t := v.(type) {
	case nil:
		return append(out, pad+prefix+n.p.paint(n.p.literal, "null"))
	case bool:
		return append(out, pad+prefix+n.p.paint(n.p.literal, strconv.FormatBool(t)))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return append(out, pad+prefix+n.p.paint(n.p.number, fmt.Sprint(t)))
	case float32:
		return append(out, pad+prefix+n.p.paint(n.p.number, strconv.FormatFloat(float64(t), 'g', -1, 32)))
	case float64:
		return append(out, pad+prefix+n.p.paint(n.p.number, strconv.FormatFloat(t, 'g', -1, 64)))
	case string:
		cont := pad + strings.Repeat(" ", len(prefix))
		for i, line := range strings.Split(strings.TrimRight(t, "\n"), "\n") {
			if i == 0 {
				out = append(out, pad+prefix+n.p.paint(n.p.str, line))
				continue
			}
			out = append(out, cont+n.p.paint(n.p.str, line))
		}
		return out
	case []any:
		for _, item := range t {
			switch item.(type) {
			case map[string]any:
				out = append(out, pad+"|_")
				out = n.display(item, indent+2, "", out)
			case []any:
				out = append(out, pad+"|_")
				out = n.display(item, indent+2, "- ", out)
			default:
				out = n.display(item, indent, "- ", out)
			}
		}
		return out
	case map[string]any:
		if indent > 0 {
			out = append(out, pad+n.p.paint(n.p.dim, separator))
		}
		for _, k := range sortedKeys(t) {
			out = append(out, pad+prefix+n.p.paint(n.p.key, k)+":")
			out = n.display(t[k], indent+4, "", out)
		}
		return out
	default:
		return append(out, pad+prefix+fmt.Sprint(t))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize reduces arbitrary values to nil, scalars, []any and
// map[string]any so every format walks the same shapes.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return fmt.Sprint(v)
		}
		return normalize(decoded)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	default:
		return fmt.Sprint(v)
	}
}
