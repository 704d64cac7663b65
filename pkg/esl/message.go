package esl

import (
	"strconv"
	"strings"
)

// Kind classifies an inbound ESL message by its Content-Type.
type Kind int

const (
	// KindReply is a command/reply frame answering auth, event, log
	// and other protocol-level commands.
	KindReply Kind = iota
	// KindAPIResponse is an api/response frame carrying the body of an
	// "api" command.
	KindAPIResponse
	// KindEvent is a text/event-plain frame (unsolicited event).
	KindEvent
	// KindLog is a log/data frame (server log line stream).
	KindLog
	// KindDisconnect is a text/disconnect-notice frame: the server is
	// about to close the connection.
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindAPIResponse:
		return "api-response"
	case KindEvent:
		return "event"
	case KindLog:
		return "log"
	case KindDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Message is a single inbound ESL frame.
type Message struct {
	Kind    Kind
	Headers map[string]string
	Body    string

	// EventHeaders holds the decoded headers of a text/event-plain
	// body. Nil for non-event frames.
	EventHeaders map[string]string
}

// ReplyText returns the Reply-Text header of a command/reply frame.
func (m *Message) ReplyText() string {
	return m.Headers["Reply-Text"]
}

// OK reports whether a command/reply frame carries a +OK reply.
func (m *Message) OK() bool {
	return strings.HasPrefix(m.ReplyText(), "+OK")
}

// EventName returns the Event-Name of an event frame, or "".
func (m *Message) EventName() string {
	if m.EventHeaders == nil {
		return ""
	}
	return m.EventHeaders["Event-Name"]
}

// LogLevel returns the numeric Log-Level of a log/data frame.
// FreeSWITCH levels run 0 (console) through 7 (debug); unknown or
// missing levels default to 7.
func (m *Message) LogLevel() int {
	n, err := strconv.Atoi(m.Headers["Log-Level"])
	if err != nil || n < 0 {
		return 7
	}
	return n
}
