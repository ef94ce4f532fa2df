package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Validate checks that a load is well formed for its command.
func (l *Load) Validate() error {
	switch l.Cmd {
	case CmdReturn:
		if l.Result == nil {
			return fmt.Errorf("return load has no result")
		}
		if l.Fun == "" {
			return fmt.Errorf("return load missing required field: fun")
		}
	case CmdEvent:
		if l.Tag == "" {
			return fmt.Errorf("event load missing required field: tag")
		}
	case "":
		return fmt.Errorf("load missing required field: cmd")
	default:
		return fmt.Errorf("invalid cmd value: %q (must be %q or %q)", l.Cmd, CmdReturn, CmdEvent)
	}
	return nil
}

// EncodeLoad validates and writes a load as JSON.
func EncodeLoad(w io.Writer, l *Load) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(l); err != nil {
		return fmt.Errorf("failed to encode load: %w", err)
	}
	return nil
}

// DecodeLoad reads and validates one load.
func DecodeLoad(r io.Reader) (*Load, error) {
	var l Load
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode load: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// EncodeMessage writes one lane message.
func EncodeMessage(w io.Writer, m *LaneMessage) error {
	switch m.Kind {
	case KindPing:
	case KindLoad:
		if m.Load == nil {
			return fmt.Errorf("load message has no load")
		}
		if err := m.Load.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported message kind: %q", m.Kind)
	}
	if err := json.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return nil
}

// DecodeMessage reads one lane message.
func DecodeMessage(r io.Reader) (*LaneMessage, error) {
	var m LaneMessage
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	switch m.Kind {
	case KindPing:
	case KindLoad:
		if m.Load == nil {
			return nil, fmt.Errorf("load message has no load")
		}
		if err := m.Load.Validate(); err != nil {
			return nil, err
		}
	case "":
		return nil, fmt.Errorf("message missing required field: kind")
	default:
		return nil, fmt.Errorf("invalid kind value: %q", m.Kind)
	}
	return &m, nil
}

// EncodeReply writes one lane reply.
func EncodeReply(w io.Writer, rep *LaneReply) error {
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return nil
}

// DecodeReply reads and validates one lane reply.
func DecodeReply(r io.Reader) (*LaneReply, error) {
	var rep LaneReply

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	if rep.Status == "" {
		return nil, fmt.Errorf("reply missing required field: status")
	}
	if rep.Status != StatusOK && rep.Status != StatusError {
		return nil, fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", rep.Status)
	}
	if rep.Status == StatusError && rep.Error == "" {
		return nil, fmt.Errorf("reply has status=error but no error message")
	}

	return &rep, nil
}
