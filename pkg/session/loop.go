package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"fscli/pkg/complete"
	"fscli/pkg/display"
	"fscli/pkg/history"
)

// Loop runs the interactive console: line editing, completion,
// built-in commands, and Ctrl-C handling around a session.
type Loop struct {
	sess    *Session
	fm      *display.Formatter
	hist    *history.Store
	idx     *complete.Index
	prompt  string
	connect func() error

	rl *readline.Instance

	// Ctrl-C during a running command cancels that command only.
	cmdMu     sync.Mutex
	cmdCtx    context.Context
	cmdCancel context.CancelFunc
}

// NewLoop wires a session into an interactive console. connect is
// invoked once the terminal is set up; it may retry internally.
func NewLoop(sess *Session, fm *display.Formatter, hist *history.Store, idx *complete.Index, host string, connect func() error) *Loop {
	return &Loop{
		sess:    sess,
		fm:      fm,
		hist:    hist,
		idx:     idx,
		prompt:  fmt.Sprintf("freeswitch@%s> ", host),
		connect: connect,
	}
}

// Run blocks until the user exits or the session ends. Command
// history is persisted on the way out.
func (l *Loop) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          l.prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &complete.Readline{Index: l.idx},
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()
	l.rl = rl

	// Writing through the readline instance keeps async output from
	// mangling the prompt line.
	l.fm.SetWriter(rl.Stdout())

	for _, e := range l.hist.Entries() {
		rl.SaveHistory(e)
	}

	if err := l.connect(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if l.cancelCmd() {
				fmt.Fprintln(rl.Stdout(), "^C")
			}
		}
	}()

	defer func() {
		if err := l.hist.Persist(); err != nil {
			l.sess.log.Debug().Err(err).Msg("history persist failed")
		}
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		quit, err := l.dispatch(line)
		if quit {
			break
		}
		if err != nil {
			l.printErr(err)
			select {
			case <-l.sess.Done():
				return l.sess.Err()
			default:
			}
		}
	}

	l.sess.Shutdown()
	return nil
}

// dispatch routes one input line: built-ins run locally, /commands go
// to the wire verbatim, everything else dispatches as an api call.
func (l *Loop) dispatch(line string) (quit bool, err error) {
	name := line
	slash := strings.HasPrefix(line, "/")
	if slash {
		name = strings.TrimPrefix(line, "/")
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "quit", "exit", "bye":
		return true, nil
	case "help":
		l.printHelp()
		return false, nil
	case "history":
		l.printHistory()
		return false, nil
	case "clear":
		fmt.Fprint(l.rl.Stdout(), "\033[2J\033[H")
		return false, nil
	}

	l.startCmd()
	defer l.endCmd()

	if slash {
		// Raw protocol command: /event, /log, /nolog, /noevents.
		_, err = l.sess.ExecuteRaw(name)
		if err == nil {
			l.hist.Record(line)
			l.idx.Observe(name)
			// Keep the reconnect resubscription in step with level
			// changes made at the prompt.
			switch fields[0] {
			case "log":
				if len(fields) > 1 {
					l.sess.SetLogLevel(fields[1])
				}
			case "nolog":
				l.sess.SetLogLevel("")
			}
		}
	} else {
		err = l.sess.Execute(l.ctx(), line)
	}
	if errors.Is(err, context.Canceled) {
		// Abandoned by Ctrl-C; a late reply prints on arrival.
		return false, nil
	}
	return false, err
}

func (l *Loop) printErr(err error) {
	l.fm.Print(display.Line{Class: display.ClassError, Text: "error: " + err.Error()})
}

func (l *Loop) printHelp() {
	fmt.Fprint(l.rl.Stdout(), `Built-in commands:
  help, /help          show this help
  history, /history    show command history
  clear, /clear        clear the screen
  quit, exit, bye      disconnect and exit
  /log <level>         set server log level (debug, info, ...)
  /event <fmt> <types> subscribe to events
  /noevents            cancel event subscriptions
  /nolog               stop log streaming
Anything else is sent to the server as an api command.
`)
}

func (l *Loop) printHistory() {
	for i, e := range l.hist.Entries() {
		fmt.Fprintf(l.rl.Stdout(), "%4d  %s\n", i+1, e)
	}
}

func (l *Loop) startCmd() {
	l.cmdMu.Lock()
	l.cmdCtx, l.cmdCancel = context.WithCancel(context.Background())
	l.cmdMu.Unlock()
}

func (l *Loop) endCmd() {
	l.cmdMu.Lock()
	if l.cmdCancel != nil {
		l.cmdCancel()
	}
	l.cmdCtx = nil
	l.cmdCancel = nil
	l.cmdMu.Unlock()
}

func (l *Loop) ctx() context.Context {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()
	if l.cmdCtx != nil {
		return l.cmdCtx
	}
	return context.Background()
}

// cancelCmd cancels the running command, if any.
func (l *Loop) cancelCmd() bool {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()
	if l.cmdCancel != nil {
		l.cmdCancel()
		return true
	}
	return false
}
