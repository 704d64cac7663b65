// Package session drives one console session against a FreeSWITCH
// event socket: connecting, authenticating, dispatching commands,
// streaming unsolicited output, and reconnecting after drops.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fscli/pkg/display"
	"fscli/pkg/esl"
	"fscli/pkg/history"
)

// State tracks where the session is in its lifecycle. Commands
// dispatch only from Ready.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateBusy
	StateReconnecting
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport is the wire connection a session runs over. *esl.Conn
// satisfies it; tests substitute fakes.
type Transport interface {
	Send(cmd string) error
	Messages() <-chan *esl.Message
	Err() error
	Close() error
}

// Dialer opens and authenticates a new transport.
type Dialer func() (Transport, error)

type Options struct {
	Dialer    Dialer
	Formatter *display.Formatter
	History   *history.Store
	// Observe is called with each successfully dispatched command,
	// feeding the completion index.
	Observe func(string)
	// Timeout bounds how long a dispatched command may wait for its
	// reply. It also sets the reconnect attempt interval.
	Timeout   time.Duration
	Reconnect bool
	Events    []string
	LogLevel  string
	Quiet     bool
	Logger    *zerolog.Logger
}

type Session struct {
	opts Options
	id   string
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	tr      Transport
	pending *pendingReply
	closing bool
	// dropped is closed when the current transport dies; replaced on
	// every reconnect.
	dropped chan struct{}

	done     chan struct{}
	shutdown sync.Once
	err      error
}

// pendingReply is the one-slot wait for a command's reply. A quiet
// pending keeps the reply off the terminal so the caller can render
// it itself.
type pendingReply struct {
	ch    chan *esl.Message
	quiet bool
}

// New builds a session; call Connect before dispatching.
func New(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	id := uuid.New().String()
	return &Session{
		opts:    opts,
		id:      id,
		log:     logger.With().Str("session_id", id).Logger(),
		state:   StateDisconnected,
		dropped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier used in diagnostic logs.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug().Stringer("from", prev).Stringer("to", st).Msg("session state change")
	}
}

// Done is closed once the session has permanently stopped: shutdown,
// auth failure, or an unrecoverable drop with reconnect disabled.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session stopped, nil after a clean shutdown.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Connect dials, authenticates, issues the initial log level and
// event subscriptions, and starts the reader. A rejected password
// leaves the session failed; transport errors leave it disconnected
// so the caller may retry.
func (s *Session) Connect() error {
	s.setState(StateConnecting)
	tr, err := s.dial()
	if err != nil {
		var authErr *esl.AuthError
		if errors.As(err, &authErr) {
			s.fail(err)
			return err
		}
		s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.tr = tr
	s.dropped = make(chan struct{})
	s.mu.Unlock()

	// Subscriptions go out before Ready is published so no user
	// command can slip in between.
	go s.readLoop(tr)
	s.subscribe()
	s.setState(StateReady)
	return nil
}

func (s *Session) dial() (Transport, error) {
	s.setState(StateAuthenticating)
	tr, err := s.opts.Dialer()
	if err != nil {
		s.log.Debug().Err(err).Msg("dial failed")
		return nil, err
	}
	return tr, nil
}

// subscribe reissues the session's log level and event subscriptions.
// Runs once per successful connect, including reconnects, before the
// session is published as Ready.
func (s *Session) subscribe() {
	if level := s.logLevel(); !s.opts.Quiet && level != "" {
		if _, err := s.executeInternal("log " + level); err != nil {
			s.log.Debug().Err(err).Msg("log level subscription failed")
		}
	}
	if len(s.opts.Events) > 0 {
		cmd := "event plain " + strings.Join(s.opts.Events, " ")
		if _, err := s.executeInternal(cmd); err != nil {
			s.log.Debug().Err(err).Msg("event subscription failed")
		}
	}
}

// SetLogLevel records the log level to reissue after a reconnect.
// Called when a /log or /nolog command is accepted; empty disables
// log streaming restoration.
func (s *Session) SetLogLevel(level string) {
	s.mu.Lock()
	s.opts.LogLevel = level
	s.mu.Unlock()
}

func (s *Session) logLevel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.LogLevel
}

// readLoop is the sole consumer of inbound messages, which preserves
// arrival order on the terminal: anything printed before a reply was
// received before that reply.
func (s *Session) readLoop(tr Transport) {
	for msg := range tr.Messages() {
		switch msg.Kind {
		case esl.KindReply, esl.KindAPIResponse:
			// Print before handing off so replies and surrounding
			// unsolicited output keep their arrival order. Quiet
			// dispatches render their own reply.
			p := s.takePending()
			if p == nil || !p.quiet {
				s.printReply(msg)
			}
			if p != nil {
				p.ch <- msg
			}
		case esl.KindLog:
			s.opts.Formatter.Print(display.Line{
				Class: display.ClassLog,
				Text:  strings.TrimRight(msg.Body, "\n"),
				Level: msg.LogLevel(),
			})
		case esl.KindEvent:
			s.printEvent(msg)
		}
	}
	s.onDrop(tr)
}

func (s *Session) takePending() *pendingReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// MonitorEvents is the subscription set behind the --events flag:
// the channel lifecycle plus heartbeats for liveness.
var MonitorEvents = []string{
	"CHANNEL_CREATE",
	"CHANNEL_ANSWER",
	"CHANNEL_HANGUP",
	"HEARTBEAT",
}

// channelEventLabels maps the monitored channel lifecycle events to
// their compact display tags.
var channelEventLabels = map[string]string{
	"CHANNEL_CREATE": "CREATE",
	"CHANNEL_ANSWER": "ANSWER",
	"CHANNEL_HANGUP": "HANGUP",
}

func (s *Session) printEvent(msg *esl.Message) {
	name := msg.EventName()
	// Heartbeats keep the subscription alive; they are not worth a
	// line on the console.
	if name == "HEARTBEAT" {
		return
	}
	if line, ok := formatChannelEvent(name, msg); ok {
		s.opts.Formatter.Print(display.Line{Class: display.ClassEvent, Text: line})
		return
	}
	if name == "" {
		name = "UNKNOWN"
	}
	text := fmt.Sprintf("RECV EVENT [%s]\n%s", name, strings.TrimRight(msg.Body, "\n"))
	s.opts.Formatter.Print(display.Line{Class: display.ClassEvent, Text: text})
}

// formatChannelEvent renders a channel lifecycle event as one compact
// line: "[HANGUP] uuid channel (cause)" or
// "[CREATE] uuid channel <cid-number> cid-name".
func formatChannelEvent(name string, msg *esl.Message) (string, bool) {
	label, ok := channelEventLabels[name]
	if !ok {
		return "", false
	}
	uuid := msg.EventHeaders["Unique-ID"]
	if uuid == "" {
		uuid = "?"
	}
	channel := msg.EventHeaders["Channel-Name"]
	if channel == "" {
		channel = msg.EventHeaders["Caller-Channel-Name"]
	}
	if channel == "" {
		channel = "unknown"
	}
	if name == "CHANNEL_HANGUP" {
		cause := msg.EventHeaders["Hangup-Cause"]
		if cause == "" {
			cause = "UNKNOWN"
		}
		return fmt.Sprintf("[%s] %s %s (%s)", label, uuid, channel, cause), true
	}
	cidNum := msg.EventHeaders["Caller-Caller-ID-Number"]
	cidName := msg.EventHeaders["Caller-Caller-ID-Name"]
	if cidNum != "" || cidName != "" {
		return fmt.Sprintf("[%s] %s %s <%s> %s", label, uuid, channel, cidNum, cidName), true
	}
	return fmt.Sprintf("[%s] %s %s", label, uuid, channel), true
}

func (s *Session) printReply(msg *esl.Message) {
	text := msg.ReplyText()
	if msg.Kind == esl.KindAPIResponse {
		text = strings.TrimRight(msg.Body, "\n")
	}
	if text == "" {
		return
	}
	s.opts.Formatter.Print(display.Line{Class: display.ClassReply, Text: text})
}

// onDrop runs when the transport's message channel closes. With
// reconnect enabled it keeps dialing at a fixed interval until the
// server comes back; otherwise the session ends.
func (s *Session) onDrop(tr Transport) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	cause := tr.Err()
	close(s.dropped)
	s.tr = nil
	s.mu.Unlock()

	s.log.Debug().Err(cause).Msg("connection dropped")

	if !s.opts.Reconnect {
		s.status("Disconnected.")
		s.stop(cause)
		return
	}

	s.setState(StateReconnecting)
	s.status("Disconnected, reconnecting...")
	interval := s.opts.Timeout
	if interval < time.Second {
		interval = time.Second
	}
	for {
		select {
		case <-s.done:
			return
		case <-time.After(interval):
		}
		tr, err := s.dial()
		if err != nil {
			var authErr *esl.AuthError
			if errors.As(err, &authErr) {
				s.status("Authentication rejected, giving up.")
				s.fail(err)
				return
			}
			s.setState(StateReconnecting)
			continue
		}
		s.mu.Lock()
		s.tr = tr
		s.dropped = make(chan struct{})
		s.mu.Unlock()
		go s.readLoop(tr)
		s.subscribe()
		s.setState(StateReady)
		s.status("Reconnected.")
		return
	}
}

func (s *Session) status(text string) {
	if s.opts.Quiet {
		return
	}
	s.opts.Formatter.Print(display.Line{Class: display.ClassStatus, Text: text})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
	s.shutdown.Do(func() { close(s.done) })
}

func (s *Session) stop(err error) {
	s.mu.Lock()
	s.state = StateDisconnected
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.shutdown.Do(func() { close(s.done) })
}

// awaitReady blocks until the session is dispatchable again after a
// drop, or until it permanently stops.
func (s *Session) awaitReady() error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			if err := s.Err(); err != nil {
				return err
			}
			return ErrNotConnected
		case <-ticker.C:
			if s.State() == StateReady {
				return nil
			}
		}
	}
}

// Shutdown closes the connection and ends the session. Safe to call
// more than once and from signal handlers.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.state = StateDisconnecting
	tr := s.tr
	s.tr = nil
	s.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.shutdown.Do(func() { close(s.done) })
	s.log.Debug().Msg("session shut down")
}
