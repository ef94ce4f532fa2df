// Package args turns raw command-line argument strings into typed positional
// and keyword values and binds them against a function's declared signature.
package args

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/warden/internal/registry"
)

var kwargPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// Parse splits raw strings into positional values and `key=value` keyword
// values. Every value is read as a YAML scalar or flow collection, so `3`
// becomes an int, `true` a bool and `[a, b]` a list; anything YAML rejects
// stays a string.
func Parse(raw []string) ([]any, map[string]any) {
	var pos []any
	kw := make(map[string]any)
	for _, arg := range raw {
		if m := kwargPattern.FindStringSubmatch(arg); m != nil {
			kw[m[1]] = Yamlify(m[2])
			continue
		}
		pos = append(pos, Yamlify(arg))
	}
	return pos, kw
}

// Yamlify decodes one argument value. The result always encodes as JSON:
// mapping keys become strings and non-finite floats keep their text.
func Yamlify(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	if v == nil {
		switch strings.TrimSpace(raw) {
		case "null", "Null", "NULL", "~":
			return nil
		}
		// comments and other empty documents keep their text
		return raw
	}
	return jsonSafe(v)
}

func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonSafe(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = jsonSafe(val)
		}
		return t
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return fmt.Sprint(t)
		}
	}
	return v
}

// Bound is the result of binding values against a signature.
type Bound struct {
	Args    map[string]any
	VarArgs []any
	Kwargs  map[string]any
}

// Bind matches positional and keyword values to sig. Shape mismatches wrap
// registry.ErrInvalidArgument.
func Bind(sig registry.Signature, pos []any, kw map[string]any) (Bound, error) {
	b := Bound{Args: make(map[string]any), Kwargs: make(map[string]any)}

	for i, v := range pos {
		if i < len(sig.Params) {
			b.Args[sig.Params[i].Name] = v
			continue
		}
		if !sig.VarArgs {
			return Bound{}, fmt.Errorf("%w: takes at most %d positional arguments (%d given)",
				registry.ErrInvalidArgument, len(sig.Params), len(pos))
		}
		b.VarArgs = append(b.VarArgs, v)
	}

	for k, v := range kw {
		if hasParam(sig, k) {
			if _, dup := b.Args[k]; dup {
				return Bound{}, fmt.Errorf("%w: got multiple values for argument %q", registry.ErrInvalidArgument, k)
			}
			b.Args[k] = v
			continue
		}
		if !sig.VarKwargs {
			return Bound{}, fmt.Errorf("%w: unexpected keyword argument %q", registry.ErrInvalidArgument, k)
		}
		b.Kwargs[k] = v
	}

	for _, p := range sig.Params {
		if _, ok := b.Args[p.Name]; ok {
			continue
		}
		if !p.Optional {
			return Bound{}, fmt.Errorf("%w: missing required argument %q", registry.ErrInvalidArgument, p.Name)
		}
		b.Args[p.Name] = p.Default
	}
	return b, nil
}

func hasParam(sig registry.Signature, name string) bool {
	for _, p := range sig.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}
