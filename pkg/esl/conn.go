// Package esl implements a client for the FreeSWITCH Event Socket
// Layer: a MIME-framed text protocol spoken over TCP. It handles the
// authentication handshake, frame parsing and command encoding, and
// delivers inbound frames on a channel. Higher layers never touch raw
// bytes.
package esl

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DialOptions carries everything needed to establish and authenticate
// one connection.
type DialOptions struct {
	Host     string
	Port     int
	Password string
	// User enables userauth ("user:password") instead of plain
	// password auth when non-empty.
	User    string
	Timeout time.Duration
}

// Conn is one authenticated ESL connection. Messages arriving from the
// server are delivered in order on the channel returned by Messages;
// the channel is closed when the connection dies.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	msgs chan *Message

	mu     sync.Mutex
	closed bool
	err    error
}

// inboundBuffer bounds how far the reader may run ahead of the
// consumer before blocking on the socket.
const inboundBuffer = 256

// Dial connects and authenticates. It returns *AuthError when the
// server rejects the credential and *TransportError for socket-level
// failures, including a handshake that exceeds opts.Timeout.
func Dial(opts DialOptions) (*Conn, error) {
	addr := net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port))
	log.Debug().Str("addr", addr).Msg("dialing event socket")

	nc, err := net.DialTimeout("tcp", addr, opts.Timeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Conn{
		conn: nc,
		r:    bufio.NewReader(nc),
		msgs: make(chan *Message, inboundBuffer),
	}

	if err := c.handshake(opts); err != nil {
		nc.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// handshake waits for auth/request and answers it. The whole exchange
// runs under one deadline.
func (c *Conn) handshake(opts DialOptions) error {
	if opts.Timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(opts.Timeout)); err != nil {
			return &TransportError{Op: "deadline", Err: err}
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	greeting, err := readMessage(c.r)
	if err != nil {
		return &TransportError{Op: "read greeting", Err: err}
	}
	if ct := greeting.Headers["Content-Type"]; ct != "auth/request" {
		return &TransportError{Op: "handshake", Err: fmt.Errorf("unexpected greeting %q", ct)}
	}

	var cmd string
	if opts.User != "" {
		cmd = fmt.Sprintf("userauth %s:%s", opts.User, opts.Password)
	} else {
		cmd = "auth " + opts.Password
	}
	if err := c.writeCommand(cmd); err != nil {
		return err
	}

	reply, err := readMessage(c.r)
	if err != nil {
		return &TransportError{Op: "read auth reply", Err: err}
	}
	if !reply.OK() {
		reason := strings.TrimPrefix(reply.ReplyText(), "-ERR ")
		if reason == "" {
			reason = "access denied"
		}
		return &AuthError{Reason: reason}
	}

	log.Debug().Str("addr", c.conn.RemoteAddr().String()).Msg("authenticated")
	return nil
}

// Send writes a raw protocol command ("api status", "event plain …",
// "log debug", …). The corresponding reply arrives on Messages.
func (c *Conn) Send(command string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.writeCommand(command)
}

// API encodes an "api" command. The result body arrives as a
// KindAPIResponse message.
func (c *Conn) API(command string) error {
	return c.Send("api " + command)
}

func (c *Conn) writeCommand(command string) error {
	if _, err := fmt.Fprintf(c.conn, "%s\n\n", command); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Messages returns the inbound frame channel. It is closed, after the
// final message, when the connection fails or is closed; Err then
// reports why.
func (c *Conn) Messages() <-chan *Message {
	return c.msgs
}

// Err returns the error that terminated the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Best effort: tell the server we are leaving.
	_ = c.writeCommand("exit")
	return c.conn.Close()
}

func (c *Conn) readLoop() {
	defer close(c.msgs)
	for {
		msg, err := readMessage(c.r)
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = &TransportError{Op: "read", Err: err}
			}
			c.mu.Unlock()
			return
		}
		c.msgs <- msg
		if msg.Kind == KindDisconnect {
			c.mu.Lock()
			if !c.closed {
				c.err = &TransportError{Op: "read", Err: fmt.Errorf("server sent disconnect notice")}
			}
			c.mu.Unlock()
			return
		}
	}
}
