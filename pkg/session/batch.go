package session

import (
	"context"
	"errors"

	"fscli/pkg/display"
)

// RunBatch executes commands in order over an already connected
// session and shuts it down afterwards. Command-level failures
// (timeouts, error replies) are printed and the queue continues. When
// the connection drops and reconnect is disabled the remaining
// commands are abandoned and the error is returned; partial execution
// must not silently look like success.
func RunBatch(sess *Session, commands []string) error {
	defer sess.Shutdown()

	for _, cmd := range commands {
		err := sess.Execute(context.Background(), cmd)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrNotConnected) {
			if !sess.opts.Reconnect {
				return err
			}
			// The session is redialing; wait for it and retry the
			// command once it is back.
			if werr := sess.awaitReady(); werr != nil {
				return err
			}
			if rerr := sess.Execute(context.Background(), cmd); rerr != nil {
				return rerr
			}
			continue
		}
		sess.opts.Formatter.Print(display.Line{
			Class: display.ClassError,
			Text:  "error: " + cmd + ": " + err.Error(),
		})
	}
	return nil
}
