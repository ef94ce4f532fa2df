// Package job holds the identifiers and records shared by every stage of a
// single call: the job id, the call descriptor written to the proc dir, and
// the result handed to collectors and the return channel.
package job

import (
	"regexp"
	"strings"
	"time"
)

// TargetCaller is the fixed target marker stamped on locally initiated calls.
const TargetCaller = "warden-call"

// RelayJID is the placeholder job id on relayed copies; the master allocates
// the real id for ad-hoc returns.
const RelayJID = "req"

// DefaultOutput is the format hint used when a function declares none.
const DefaultOutput = "nested"

var idPattern = regexp.MustCompile(`^\d{20}$`)

// NewID returns a 20 digit job id (YYYYMMDDhhmmssffffff) derived from t.
// Ids are unique per call within one process; two calls on the same host in
// the same microsecond collide.
func NewID(t time.Time) string {
	return strings.Replace(t.Format("20060102150405.000000"), ".", "", 1)
}

// ValidID reports whether id has the fixed-width job id shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Descriptor is the call descriptor: written to the proc dir before a
// function runs and handed to the function as its invocation context.
type Descriptor struct {
	Fun       string    `json:"fun"`
	PID       int       `json:"pid"`
	JID       string    `json:"jid"`
	Target    string    `json:"tgt"`
	Arg       []string  `json:"arg,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Result is the structured outcome of one call.
//
// ID, Fun and FunArgs are populated only when the result is relayed to the
// master or handed to collectors.
type Result struct {
	JID     string   `json:"jid" yaml:"jid"`
	Return  any      `json:"return" yaml:"return"`
	Retcode int      `json:"retcode" yaml:"retcode"`
	Out     string   `json:"out,omitempty" yaml:"out,omitempty"`
	Success bool     `json:"success" yaml:"success"`
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Fun     string   `json:"fun,omitempty" yaml:"fun,omitempty"`
	FunArgs []string `json:"fun_args,omitempty" yaml:"fun_args,omitempty"`
}

// HasIdentity reports whether the originating identity fields are attached.
func (r Result) HasIdentity() bool {
	return r.ID != "" || r.Fun != "" || r.FunArgs != nil
}

// Map renders the result as a plain map for outputters.
func (r Result) Map() map[string]any {
	m := map[string]any{
		"jid":     r.JID,
		"return":  r.Return,
		"retcode": r.Retcode,
		"success": r.Success,
	}
	if r.Out != "" {
		m["out"] = r.Out
	}
	if r.HasIdentity() {
		m["id"] = r.ID
		m["fun"] = r.Fun
		m["fun_args"] = r.FunArgs
	}
	return m
}
