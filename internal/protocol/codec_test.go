package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattjoyce/warden/internal/job"
)

func TestReturnLoadUsesRelayJID(t *testing.T) {
	r := job.Result{JID: "20260101120000123456", Return: true, Success: true, ID: "web01", Fun: "test.ping"}
	l := ReturnLoad(r)

	if l.Cmd != CmdReturn {
		t.Fatalf("cmd = %q, want %q", l.Cmd, CmdReturn)
	}
	if l.JID != job.RelayJID {
		t.Fatalf("jid = %q, want %q", l.JID, job.RelayJID)
	}
	if l.ID != "web01" {
		t.Fatalf("id = %q, want web01", l.ID)
	}
	if r.JID != "20260101120000123456" {
		t.Fatal("ReturnLoad must not modify the caller's result")
	}
}

func TestEncodeLoad(t *testing.T) {
	tests := []struct {
		name    string
		load    *Load
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "return load is flattened",
			load: ReturnLoad(job.Result{Return: "pong", Success: true, ID: "web01", Fun: "test.ping", FunArgs: []string{}}),
			checkFn: func(t *testing.T, output string) {
				for _, want := range []string{`"cmd":"_return"`, `"id":"web01"`, `"jid":"req"`, `"fun":"test.ping"`, `"return":"pong"`} {
					if !strings.Contains(output, want) {
						t.Errorf("output missing %s: %s", want, output)
					}
				}
			},
		},
		{
			name: "event load carries tag and data",
			load: EventLoad("web01", "deploy/done", map[string]any{"ok": true}),
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"tag":"deploy/done"`) {
					t.Error("missing tag")
				}
				if strings.Contains(output, `"jid"`) {
					t.Error("event load must not carry result fields")
				}
			},
		},
		{
			name:    "return without result",
			load:    &Load{Cmd: CmdReturn, ID: "web01"},
			wantErr: true,
		},
		{
			name:    "return without fun",
			load:    &Load{Cmd: CmdReturn, Result: &job.Result{}},
			wantErr: true,
		},
		{
			name:    "event without tag",
			load:    &Load{Cmd: CmdEvent},
			wantErr: true,
		},
		{
			name:    "unknown cmd",
			load:    &Load{Cmd: "_publish"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeLoad(&buf, tt.load)

			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeLoad() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeLoad(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, l *Load)
	}{
		{
			name:  "return load",
			input: `{"cmd":"_return","id":"web01","jid":"req","fun":"test.ping","return":true,"retcode":0,"success":true}`,
			checkFn: func(t *testing.T, l *Load) {
				if l.Result == nil || l.Fun != "test.ping" {
					t.Fatalf("result not decoded: %+v", l)
				}
				if l.ID != "web01" {
					t.Errorf("id = %q", l.ID)
				}
			},
		},
		{
			name:  "event load",
			input: `{"cmd":"_minion_event","id":"web01","tag":"t","data":{"n":1}}`,
			checkFn: func(t *testing.T, l *Load) {
				if l.Result != nil {
					t.Error("event load decoded a result")
				}
				if l.Data["n"] != float64(1) {
					t.Errorf("data = %v", l.Data)
				}
			},
		},
		{name: "unknown field", input: `{"cmd":"_minion_event","tag":"t","extra":1}`, wantErr: true},
		{name: "missing cmd", input: `{"id":"web01"}`, wantErr: true},
		{name: "invalid JSON", input: `{not json}`, wantErr: true},
		{name: "empty input", input: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := DecodeLoad(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeLoad() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, l)
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	load := EventLoad("web01", "t", nil)
	if err := EncodeMessage(&buf, &LaneMessage{Kind: KindLoad, Load: load}); err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	m, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if m.Kind != KindLoad || m.Load == nil || m.Load.Tag != "t" {
		t.Fatalf("unexpected message: %+v", m)
	}

	if err := EncodeMessage(&buf, &LaneMessage{Kind: KindLoad}); err == nil {
		t.Fatal("expected error for load message without load")
	}
	if err := EncodeMessage(&buf, &LaneMessage{Kind: "shutdown"}); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
	if _, err := DecodeMessage(strings.NewReader(`{"kind":""}`)); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ok", `{"status":"ok"}`, false},
		{"error with message", `{"status":"error","error":"master unreachable"}`, false},
		{"missing status", `{}`, true},
		{"invalid status", `{"status":"maybe"}`, true},
		{"error status without message", `{"status":"error"}`, true},
		{"empty input", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReply(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeReply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
