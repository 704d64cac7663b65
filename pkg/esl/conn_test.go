package esl

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection and drives the ESL side of the
// handshake, then hands the connection to script.
func fakeServer(t *testing.T, script func(net.Conn, *bufio.Reader)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, bufio.NewReader(conn))
	}()

	return ln.Addr().String()
}

func expectLine(t *testing.T, r *bufio.Reader, want string) {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimRight(line, "\n"))
	// Consume the blank command terminator.
	_, err = r.ReadString('\n')
	require.NoError(t, err)
}

func acceptAuth(conn net.Conn, r *bufio.Reader) bool {
	fmt.Fprint(conn, "Content-Type: auth/request\n\n")
	line, err := r.ReadString('\n')
	if err != nil {
		return false
	}
	r.ReadString('\n') // blank terminator
	if strings.HasPrefix(line, "auth ") || strings.HasPrefix(line, "userauth ") {
		fmt.Fprint(conn, "Content-Type: command/reply\nReply-Text: +OK accepted\n\n")
		return true
	}
	fmt.Fprint(conn, "Content-Type: command/reply\nReply-Text: -ERR invalid\n\n")
	return false
}

func dialOpts(addr string) DialOptions {
	host, portStr, _ := net.SplitHostPort(addr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return DialOptions{Host: host, Port: port, Password: "ClueCon", Timeout: 2 * time.Second}
}

func TestDial_PasswordAuth(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn, r *bufio.Reader) {
		if !acceptAuth(conn, r) {
			return
		}
		// Hold the connection open until the client hangs up.
		r.ReadString('\n')
	})

	c, err := Dial(dialOpts(addr))
	require.NoError(t, err)
	defer c.Close()
}

func TestDial_AuthRejected(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn, r *bufio.Reader) {
		fmt.Fprint(conn, "Content-Type: auth/request\n\n")
		r.ReadString('\n')
		r.ReadString('\n')
		fmt.Fprint(conn, "Content-Type: command/reply\nReply-Text: -ERR invalid password\n\n")
	})

	_, err := Dial(dialOpts(addr))
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid password", authErr.Reason)
	assert.False(t, IsConnectionError(err))
}

func TestDial_ConnectionRefused(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(dialOpts(addr))
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestConn_APIRoundTrip(t *testing.T) {
	body := "FreeSWITCH is ready\n"
	addr := fakeServer(t, func(conn net.Conn, r *bufio.Reader) {
		if !acceptAuth(conn, r) {
			return
		}
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\n") != "api status" {
			return
		}
		r.ReadString('\n')
		fmt.Fprintf(conn, "Content-Type: api/response\nContent-Length: %d\n\n%s", len(body), body)
		r.ReadString('\n')
	})

	c, err := Dial(dialOpts(addr))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.API("status"))

	select {
	case msg := <-c.Messages():
		assert.Equal(t, KindAPIResponse, msg.Kind)
		assert.Equal(t, body, msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for api response")
	}
}

func TestConn_ChannelClosesOnServerDrop(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn, r *bufio.Reader) {
		if !acceptAuth(conn, r) {
			return
		}
		// Drop immediately after auth.
	})

	c, err := Dial(dialOpts(addr))
	require.NoError(t, err)
	defer c.Close()

	select {
	case _, ok := <-c.Messages():
		assert.False(t, ok, "channel should be closed, not deliver a message")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
	assert.True(t, IsConnectionError(c.Err()))
}

func TestSend_AfterClose(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn, r *bufio.Reader) {
		if !acceptAuth(conn, r) {
			return
		}
		r.ReadString('\n')
	})

	c, err := Dial(dialOpts(addr))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send("api status"), ErrClosed)
}
