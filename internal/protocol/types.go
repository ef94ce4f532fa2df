package protocol

import "github.com/mattjoyce/warden/internal/job"

// Load commands.
const (
	CmdReturn = "_return"
	CmdEvent  = "_minion_event"
)

// Lane message kinds.
const (
	KindPing = "ping"
	KindLoad = "load"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Load is the message relayed to the master, over either transport.
// Returns carry the flattened call result; events carry tag and data.
type Load struct {
	Cmd  string         `json:"cmd"` // _return | _minion_event
	ID   string         `json:"id"`
	Tag  string         `json:"tag,omitempty"`
	Data map[string]any `json:"data,omitempty"`

	*job.Result
}

// ReturnLoad builds the relay copy of r: cmd _return and the placeholder
// jid the master swaps for a job id of its own.
func ReturnLoad(r job.Result) *Load {
	r.JID = job.RelayJID
	return &Load{Cmd: CmdReturn, ID: r.ID, Result: &r}
}

// EventLoad builds a minion event.
func EventLoad(id, tag string, data map[string]any) *Load {
	return &Load{Cmd: CmdEvent, ID: id, Tag: tag, Data: data}
}

// LaneMessage is the one request sent per lane connection.
type LaneMessage struct {
	Kind string `json:"kind"` // ping | load
	Load *Load  `json:"load,omitempty"`
}

// LaneReply answers exactly one LaneMessage.
type LaneReply struct {
	Status string `json:"status"` // ok | error
	Error  string `json:"error,omitempty"`
}

// Receipt is the master's answer to an accepted return.
type Receipt struct {
	Status    string `json:"status"`
	JID       string `json:"jid"`
	ReceiptID string `json:"receipt_id"`
}
