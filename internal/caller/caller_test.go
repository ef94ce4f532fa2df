package caller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/protocol"
)

func TestNewSelectsVariant(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		master    string
		want      string
		wantErr   bool
	}{
		{name: "default broker", want: "broker"},
		{name: "explicit lane", transport: "lane", want: "lane"},
		{name: "master transport fallback", master: "lane", want: "lane"},
		{name: "explicit wins", transport: "broker", master: "lane", want: "broker"},
		{name: "unsupported", transport: "zeromq", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Transport = tt.transport
			cfg.Master.Transport = tt.master

			c, err := New(cfg, Deps{Registry: testRegistry(t, nil)})
			if tt.wantErr {
				var ce *ConfigurationError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "transport", ce.Field)
				assert.Contains(t, err.Error(), "zeromq")
				return
			}
			require.NoError(t, err)
			switch tt.want {
			case "broker":
				assert.IsType(t, &BrokerCaller{}, c)
			case "lane":
				lc, ok := c.(*LaneCaller)
				require.True(t, ok)
				assert.Equal(t, StateInit, lc.State())
			}
		})
	}
}

func TestBrokerRequiresIdentityToRelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.ID = ""
	_, err := New(cfg, Deps{Registry: testRegistry(t, nil)})
	require.NoError(t, err, "local mode never relays")

	cfg.Local = false
	_, err = New(cfg, Deps{Registry: testRegistry(t, nil)})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "id", ce.Field)
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(testConfig(t), Deps{})
	require.Error(t, err)
}

func runBroker(t *testing.T, cfg *config.Config, fun string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c, err := New(cfg, Deps{Registry: testRegistry(t, nil), Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	code, err := c.Run(context.Background(), Request{Fun: fun, Args: args})
	require.NoError(t, err)
	return code, stdout.String(), stderr.String()
}

func TestBrokerRunRendersReturn(t *testing.T) {
	cfg := testConfig(t)
	code, stdout, stderr := runBroker(t, cfg, "test.echo", "hello")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "local:\n    hello\n", stdout)
	assert.Empty(t, stderr)
}

func TestBrokerRunOutputOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output = "json"
	_, stdout, _ := runBroker(t, cfg, "test.echo", "hello")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, map[string]any{"local": "hello"}, got)
}

func TestBrokerRunHintFromEntry(t *testing.T) {
	cfg := testConfig(t)
	_, stdout, _ := runBroker(t, cfg, "grains.items")
	assert.JSONEq(t, `{"local":{"os":"linux"}}`, stdout)
}

func TestBrokerRunMetadata(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata = true
	_, stdout, _ := runBroker(t, cfg, "test.ping")
	assert.Contains(t, stdout, "local:\n")
	assert.Contains(t, stdout, "jid:")
	assert.Contains(t, stdout, "retcode:")
	assert.Contains(t, stdout, "success:")
}

func TestBrokerRunRetcodePassthrough(t *testing.T) {
	cfg := testConfig(t)
	code, _, _ := runBroker(t, cfg, "test.retcode", "4")
	assert.Equal(t, ExitOK, code)

	cfg.RetcodePassthrough = true
	code, _, _ = runBroker(t, cfg, "test.retcode", "4")
	assert.Equal(t, 4, code)
}

func TestBrokerRunCallErrorsExitGeneric(t *testing.T) {
	cfg := testConfig(t)
	for _, fun := range []string{"nope.missing", "test.fail", "test.panic"} {
		code, stdout, stderr := runBroker(t, cfg, fun)
		assert.Equal(t, ExitGeneric, code, fun)
		assert.Empty(t, stdout, fun)
		assert.NotEmpty(t, stderr, fun)
	}
	_, _, stderr := runBroker(t, cfg, "nope.missing")
	assert.Equal(t, "Function nope.missing is not available.\n", stderr)
}

func TestBrokerRunRelaysToMaster(t *testing.T) {
	loads := make(chan protocol.Load, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l, err := protocol.DecodeLoad(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		loads <- *l
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Local = false
	cfg.Master.Address = srv.URL

	code, _, _ := runBroker(t, cfg, "test.echo", "hi")
	assert.Equal(t, ExitOK, code)

	l := <-loads
	assert.Equal(t, "web01", l.ID)
	assert.Equal(t, "test.echo", l.Fun)
	assert.Equal(t, "hi", l.Return)
}

func TestBrokerRunOnce(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewBroker(cfg, Deps{Registry: testRegistry(t, nil), Stdout: &bytes.Buffer{}})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), Request{Fun: "test.ping"})
	require.NoError(t, err)
	code, err := c.Run(context.Background(), Request{Fun: "test.ping"})
	assert.ErrorIs(t, err, ErrCallerClosed)
	assert.Equal(t, ExitGeneric, code)
}

func TestPrintDocs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintDocs(&buf, testRegistry(t, nil), "test."))
	assert.Equal(t, "test.echo:\nReturn text unchanged.\n\ntest.ping:\nReturn true.\n\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintDocs(&buf, testRegistry(t, nil), "nope."))
	assert.Empty(t, buf.String())
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := &ConfigurationError{Field: "id", Reason: "missing"}
	assert.Equal(t, "invalid configuration id: missing", err.Error())

	err = &ConfigurationError{Field: "role", Value: "syndic", Reason: "unsupported"}
	assert.Equal(t, `invalid configuration role="syndic": unsupported`, err.Error())

	nf := &FunctionNotAvailableError{Fun: "x.y", LoadErr: errors.New("boom")}
	assert.True(t, strings.HasSuffix(nf.Error(), "Possible reasons: boom"))
	assert.ErrorIs(t, nf, nf.LoadErr)
}
