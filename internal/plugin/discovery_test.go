package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/registry"
)

const echoScript = `#!/bin/sh
req=$(cat)
case "$1" in
  hello) echo '{"return": "hello from sh", "retcode": 0}' ;;
  request) printf '{"return": %s}\n' "$req" ;;
  fail) echo '{"error": "disk on fire"}' ;;
  badarg) echo '{"error": "name is required", "error_kind": "argument"}' ;;
  nocmd) echo '{"error": "nginx not installed", "error_kind": "command_not_found"}' ;;
  crash) echo "segfault" >&2; exit 3 ;;
  partial) echo '{"return": false}'; exit 2 ;;
  *) echo '{"error": "unknown function"}' ;;
esac
`

func writeModule(t *testing.T, root, dir, manifest, script string, mode os.FileMode) {
	t.Helper()
	modDir := filepath.Join(root, dir)
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "manifest.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(modDir, "run.sh"), []byte(script), mode); err != nil {
			t.Fatal(err)
		}
	}
}

const shellManifest = `name: shell
version: 1.0.0
protocol: 1
entrypoint: run.sh
timeout: 5s
functions:
  - name: hello
    doc: Say hello.
  - name: request
    output: json
    params:
      - name: target
      - name: verbose
        default: false
    kwargs: true
  - name: fail
  - name: badarg
  - name: nocmd
  - name: crash
  - name: partial
`

func TestDiscover(t *testing.T) {
	tests := []struct {
		name       string
		setupFn    func(t *testing.T) string
		wantLoaded []string
		wantFailed []string
		wantErr    bool
	}{
		{
			name: "valid module discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "shell", shellManifest, echoScript, 0o755)
				return dir
			},
			wantLoaded: []string{"shell"},
		},
		{
			name: "directory without manifest skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				if err := os.Mkdir(filepath.Join(dir, "empty"), 0o755); err != nil {
					t.Fatal(err)
				}
				return dir
			},
		},
		{
			name: "non-executable entrypoint recorded as failed",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "shell", shellManifest, echoScript, 0o644)
				return dir
			},
			wantFailed: []string{"shell"},
		},
		{
			name: "missing entrypoint recorded as failed",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "shell", shellManifest, "", 0)
				return dir
			},
			wantFailed: []string{"shell"},
		},
		{
			name: "unsupported protocol",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "v9", strings.Replace(shellManifest, "protocol: 1", "protocol: 9", 1), echoScript, 0o755)
				return dir
			},
			wantFailed: []string{"shell"},
		},
		{
			name: "unparseable manifest named by directory",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "broken", "name: [unterminated", echoScript, 0o755)
				return dir
			},
			wantFailed: []string{"broken"},
		},
		{
			name: "path traversal rejected",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeModule(t, dir, "evil", strings.Replace(shellManifest, "entrypoint: run.sh", "entrypoint: ../run.sh", 1), echoScript, 0o755)
				return dir
			},
			wantFailed: []string{"shell"},
		},
		{
			name: "missing root is an error",
			setupFn: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := tt.setupFn(t)
			c, err := Discover([]string{root})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}

			var loaded []string
			for _, p := range c.All() {
				loaded = append(loaded, p.Name)
			}
			if strings.Join(loaded, ",") != strings.Join(tt.wantLoaded, ",") {
				t.Errorf("loaded = %v, want %v", loaded, tt.wantLoaded)
			}
			for _, name := range tt.wantFailed {
				if _, ok := c.Failed()[name]; !ok {
					t.Errorf("expected %q in failed set, got %v", name, c.Failed())
				}
			}
			if len(c.Failed()) != len(tt.wantFailed) {
				t.Errorf("failed = %v, want %v", c.Failed(), tt.wantFailed)
			}
		})
	}
}

func TestDiscoverDuplicateKeepsFirst(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeModule(t, first, "shell", shellManifest, echoScript, 0o755)
	writeModule(t, second, "shell", shellManifest, echoScript, 0o755)

	c, err := Discover([]string{first, second})
	if err != nil {
		t.Fatal(err)
	}
	p, ok := c.Get("shell")
	if !ok {
		t.Fatal("shell not loaded")
	}
	if !strings.HasPrefix(p.Path, first) {
		t.Errorf("kept %s, want module from %s", p.Path, first)
	}
}

func TestSignature(t *testing.T) {
	fn := Function{
		Params:    []Param{{Name: "target"}, {Name: "verbose", Default: false}, {Name: "tag", Optional: true}},
		VarKwargs: true,
	}
	sig := fn.Signature()
	if len(sig.Params) != 3 {
		t.Fatalf("params = %d", len(sig.Params))
	}
	if sig.Params[0].Optional {
		t.Error("target should be required")
	}
	if !sig.Params[1].Optional || !sig.Params[2].Optional {
		t.Error("defaulted and optional params should be optional")
	}
	if !sig.VarKwargs || sig.VarArgs {
		t.Error("var flags not carried")
	}
}

func loadShell(t *testing.T) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	writeModule(t, root, "shell", shellManifest, echoScript, 0o755)
	c, err := Discover([]string{root})
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	Register(reg, c, nil)
	return reg
}

func call(t *testing.T, reg *registry.Registry, fun string, args map[string]any) (any, int, error) {
	t.Helper()
	e, ok := reg.Lookup(fun)
	if !ok {
		t.Fatalf("%s not registered", fun)
	}
	mc, err := reg.ModuleContext(e.Module())
	if err != nil {
		t.Fatal(err)
	}
	mc.Begin()
	inv := registry.NewInvocation(job.Descriptor{Fun: fun, JID: "20260501093000000001", PID: 7, Target: job.TargetCaller}, args, nil, nil, mc)
	ret, err := e.Func(context.Background(), inv)
	return ret, mc.Retcode(), err
}

func TestRegisterAndInvoke(t *testing.T) {
	reg := loadShell(t)

	e, ok := reg.Lookup("shell.request")
	if !ok {
		t.Fatal("shell.request missing")
	}
	if e.OutputHint != "json" {
		t.Errorf("OutputHint = %q", e.OutputHint)
	}
	if docs := reg.Docs("shell.hello"); docs["shell.hello"] != "Say hello." {
		t.Errorf("doc = %q", docs["shell.hello"])
	}

	ret, code, err := call(t, reg, "shell.hello", nil)
	if err != nil || ret != "hello from sh" || code != 0 {
		t.Errorf("hello = %v, %d, %v", ret, code, err)
	}

	ret, _, err = call(t, reg, "shell.request", map[string]any{"target": "web"})
	if err != nil {
		t.Fatal(err)
	}
	req, ok := ret.(map[string]any)
	if !ok {
		t.Fatalf("request echo = %T", ret)
	}
	if req["fun"] != "shell.request" || req["tgt"] != job.TargetCaller {
		t.Errorf("request descriptor = %v", req)
	}
	if args, _ := req["args"].(map[string]any); args["target"] != "web" {
		t.Errorf("request args = %v", req["args"])
	}
}

func TestInvokeErrors(t *testing.T) {
	reg := loadShell(t)

	_, _, err := call(t, reg, "shell.fail", nil)
	if err == nil || err.Error() != "disk on fire" {
		t.Errorf("fail = %v", err)
	}

	_, _, err = call(t, reg, "shell.badarg", nil)
	if !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("badarg = %v, want ErrInvalidArgument", err)
	}

	_, _, err = call(t, reg, "shell.nocmd", nil)
	if !errors.Is(err, registry.ErrCommandNotFound) {
		t.Errorf("nocmd = %v, want ErrCommandNotFound", err)
	}

	_, _, err = call(t, reg, "shell.crash", nil)
	if err == nil || !strings.Contains(err.Error(), "status 3") || !strings.Contains(err.Error(), "segfault") {
		t.Errorf("crash = %v", err)
	}

	ret, code, err := call(t, reg, "shell.partial", nil)
	if err != nil || ret != false || code != 2 {
		t.Errorf("partial = %v, %d, %v", ret, code, err)
	}
}

func TestRegisterRecordsLoadErrors(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "shell", shellManifest, echoScript, 0o644)
	c, err := Discover([]string{root})
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	Register(reg, c, nil)

	loadErr, ok := reg.LoadError("shell")
	if !ok || !strings.Contains(loadErr.Error(), "not executable") {
		t.Errorf("load error = %v, %v", loadErr, ok)
	}
	if _, ok := reg.Lookup("shell.hello"); ok {
		t.Error("functions of a failed module must not register")
	}
}
