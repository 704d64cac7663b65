package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"fscli/pkg/display"
	"fscli/pkg/esl"
)

var (
	// ErrNotConnected means the session has no live connection to
	// dispatch over.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout means no reply arrived within the dispatch timeout.
	// The session stays usable; a late reply prints as unsolicited
	// output.
	ErrTimeout = errors.New("command timed out")
	// ErrDisconnected means the connection dropped while a command
	// was waiting for its reply.
	ErrDisconnected = errors.New("disconnected while awaiting reply")
)

// Execute dispatches a console command as an api invocation and
// prints its reply. Blank input is a no-op. Canceling ctx abandons
// the wait without tearing down the connection.
func (s *Session) Execute(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var err error
	if text == "uptime" {
		err = s.executeUptime(ctx)
	} else {
		_, err = s.executeWait(ctx, "api "+text, false)
	}
	if err != nil {
		return err
	}
	if s.opts.History != nil {
		s.opts.History.Record(text)
	}
	if s.opts.Observe != nil {
		s.opts.Observe(text)
	}
	return nil
}

// executeUptime answers the console's "uptime" from the status
// output: the server has no uptime api, so the UP line is picked out
// of "api status" client-side.
func (s *Session) executeUptime(ctx context.Context) error {
	msg, err := s.executeWait(ctx, "api status", true)
	if err != nil {
		return err
	}
	s.opts.Formatter.Print(display.Line{Class: display.ClassReply, Text: extractUptime(msg.Body)})
	return nil
}

func extractUptime(status string) string {
	for _, line := range strings.Split(status, "\n") {
		if strings.Contains(line, "UP") &&
			(strings.Contains(line, "years") || strings.Contains(line, "days") || strings.Contains(line, "hours")) {
			return strings.TrimSpace(line)
		}
	}
	return "Uptime information not found"
}

// ExecuteRaw dispatches a protocol command verbatim, for inputs that
// are not api invocations: event subscriptions, log level changes.
func (s *Session) ExecuteRaw(cmd string) (*esl.Message, error) {
	return s.executeWait(context.Background(), cmd, false)
}

// executeWait sends cmd and waits for the reply. At most one command
// is outstanding at a time: replies carry no correlation token, so
// order is the only way to match them. A quiet dispatch keeps the
// reply off the terminal and hands it to the caller instead.
func (s *Session) executeWait(ctx context.Context, cmd string, quiet bool) (*esl.Message, error) {
	s.mu.Lock()
	if s.state != StateReady || s.tr == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	tr := s.tr
	dropped := s.dropped
	p := &pendingReply{ch: make(chan *esl.Message, 1), quiet: quiet}
	s.pending = p
	s.state = StateBusy
	s.mu.Unlock()

	msg, err := s.await(ctx, tr, dropped, p, cmd)
	if err == nil {
		s.clearBusy()
	}
	return msg, err
}

// executeInternal dispatches before the session is published as
// Ready: the subscription reissue on connect and reconnect. No user
// command can be outstanding yet, so the pending slot is free by
// construction.
func (s *Session) executeInternal(cmd string) (*esl.Message, error) {
	s.mu.Lock()
	if s.tr == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	tr := s.tr
	dropped := s.dropped
	p := &pendingReply{ch: make(chan *esl.Message, 1)}
	s.pending = p
	s.mu.Unlock()

	return s.await(context.Background(), tr, dropped, p, cmd)
}

// await performs the send and the bounded wait for the pending reply.
// On any failure the pending slot is released.
func (s *Session) await(ctx context.Context, tr Transport, dropped chan struct{}, p *pendingReply, cmd string) (*esl.Message, error) {
	s.log.Debug().Str("command", cmd).Msg("dispatch")

	if err := tr.Send(cmd); err != nil {
		s.abandon(p)
		if esl.IsConnectionError(err) {
			return nil, ErrDisconnected
		}
		return nil, err
	}

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case msg := <-p.ch:
		return msg, nil
	case <-timer.C:
		s.abandon(p)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.abandon(p)
		return nil, ctx.Err()
	case <-dropped:
		s.abandon(p)
		return nil, ErrDisconnected
	}
}

// abandon unregisters a pending reply. The reader already printed
// any reply it handed off, so a reply racing the abandonment is
// drained, not lost.
func (s *Session) abandon(p *pendingReply) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	if s.state == StateBusy {
		s.state = StateReady
	}
	s.mu.Unlock()

	select {
	case msg := <-p.ch:
		// A quiet reply was never printed by the reader; a command
		// abandoned at the finish line still shows its late reply.
		if p.quiet {
			s.printReply(msg)
		}
	default:
	}
}

func (s *Session) clearBusy() {
	s.mu.Lock()
	if s.state == StateBusy {
		s.state = StateReady
	}
	s.mu.Unlock()
}
