package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fscli/pkg/complete"
	"fscli/pkg/config"
	"fscli/pkg/display"
	"fscli/pkg/esl"
	"fscli/pkg/history"
	"fscli/pkg/session"
)

var (
	cfgFile      string
	listProfiles bool

	flagHost     string
	flagPort     int
	flagPassword string
	flagUser     string
	flagDebug    int
	flagColor    string
	flagExecute  []string
	flagHistory  string
	flagTimeout  time.Duration
	flagRetry    bool
	flagReconn   bool
	flagEvents   bool
	flagLogLevel string
	flagQuiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "fscli [profile]",
	Short: "Command line interface for the FreeSWITCH event socket",
	Long: `An interactive console for FreeSWITCH. Connects to the event socket,
streams server logs and events, and dispatches api commands with line
editing, completion and history. Profiles for multiple servers live in
~/.config/fscli.yaml.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/fscli.yaml)")
	rootCmd.Flags().BoolVar(&listProfiles, "list-profiles", false, "list configured profiles and exit")

	rootCmd.Flags().StringVarP(&flagHost, "host", "H", "", "event socket host")
	rootCmd.Flags().IntVarP(&flagPort, "port", "P", 0, "event socket port")
	rootCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "event socket password")
	rootCmd.Flags().StringVarP(&flagUser, "user", "u", "", "user for userauth (user:password login)")
	rootCmd.Flags().IntVarP(&flagDebug, "debug", "d", -1, "client debug level (0-7)")
	rootCmd.Flags().StringVar(&flagColor, "color", "", "output color policy: never, tag or line")
	rootCmd.Flags().StringArrayVarP(&flagExecute, "execute", "x", nil, "execute command(s) and exit; repeatable, ';' separates within one value")
	rootCmd.Flags().StringVar(&flagHistory, "history-file", "", "command history file")
	rootCmd.Flags().DurationVarP(&flagTimeout, "timeout", "T", 0, "connect and command reply timeout")
	rootCmd.Flags().BoolVarP(&flagRetry, "retry", "r", false, "retry the initial connection until it succeeds")
	rootCmd.Flags().BoolVarP(&flagReconn, "reconnect", "R", false, "reconnect and resubscribe after the connection drops")
	rootCmd.Flags().BoolVar(&flagEvents, "events", false, "subscribe to channel events (create/answer/hangup) on connect")
	rootCmd.Flags().StringVarP(&flagLogLevel, "log-level", "l", "", "server log level to stream (debug, info, ...)")
	rootCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log streaming and status output")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if listProfiles {
		for _, name := range cfg.Names() {
			fmt.Println(name)
		}
		return nil
	}

	name := config.DefaultProfile
	if len(args) == 1 {
		name = args[0]
	}
	profile, err := cfg.Profile(name)
	if err != nil {
		return err
	}
	applyFlags(cmd, &profile)

	setupLogging(profile.Debug)

	mode, err := display.ParseMode(profile.Color)
	if err != nil {
		return err
	}
	// Piped output must stay byte-identical to the wire text.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		mode = display.ModeOff
	}
	fm := display.New(mode)

	batch := len(flagExecute) > 0

	histPath := profile.HistoryFile
	if batch {
		histPath = ""
	}
	hist := history.New(histPath)
	if err := hist.Load(); err != nil {
		log.Debug().Err(err).Msg("history load failed")
	}

	idx := complete.NewIndex(complete.Commands())
	for _, e := range hist.Entries() {
		idx.Observe(e)
	}

	sess := session.New(session.Options{
		Dialer:    dialer(profile),
		Formatter: fm,
		History:   hist,
		Observe:   idx.Observe,
		Timeout:   profile.Timeout,
		Reconnect: profile.Reconnect,
		Events:    profile.Events,
		LogLevel:  profile.LogLevel,
		Quiet:     profile.Quiet || batch,
	})

	if batch {
		if err := connectWithRetry(sess, profile); err != nil {
			return err
		}
		return session.RunBatch(sess, splitCommands(flagExecute))
	}

	loop := session.NewLoop(sess, fm, hist, idx, profile.Host, func() error {
		return connectWithRetry(sess, profile)
	})
	return loop.Run()
}

// applyFlags overlays command line flags onto the resolved profile.
// Only flags the user actually set win over the config file.
func applyFlags(cmd *cobra.Command, p *config.Profile) {
	if cmd.Flags().Changed("host") {
		p.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		p.Port = flagPort
	}
	if cmd.Flags().Changed("password") {
		p.Password = flagPassword
	}
	if cmd.Flags().Changed("user") {
		p.User = flagUser
	}
	if cmd.Flags().Changed("debug") {
		p.Debug = flagDebug
	}
	if cmd.Flags().Changed("color") {
		p.Color = flagColor
	}
	if cmd.Flags().Changed("history-file") {
		p.HistoryFile = flagHistory
	}
	if cmd.Flags().Changed("timeout") {
		p.Timeout = flagTimeout
	}
	if cmd.Flags().Changed("retry") {
		p.Retry = flagRetry
	}
	if cmd.Flags().Changed("reconnect") {
		p.Reconnect = flagReconn
	}
	if cmd.Flags().Changed("events") {
		p.Events = nil
		if flagEvents {
			p.Events = session.MonitorEvents
		}
	}
	if cmd.Flags().Changed("log-level") {
		p.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("quiet") {
		p.Quiet = flagQuiet
	}
}

// setupLogging configures client diagnostics on stderr, keeping
// stdout clean for server output. The debug level follows the
// classic 0-7 console scale.
func setupLogging(debug int) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	switch {
	case debug >= 7:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case debug >= 4:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case debug >= 2:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case debug >= 1:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

func dialer(p config.Profile) session.Dialer {
	opts := esl.DialOptions{
		Host:     p.Host,
		Port:     p.Port,
		Password: p.Password,
		User:     p.User,
		Timeout:  p.Timeout,
	}
	return func() (session.Transport, error) {
		return esl.Dial(opts)
	}
}

// connectWithRetry dials once, or keeps dialing at the connect
// timeout interval when retry is on. Auth rejections never retry.
func connectWithRetry(sess *session.Session, p config.Profile) error {
	interval := p.Timeout
	if interval < time.Second {
		interval = time.Second
	}
	for {
		err := sess.Connect()
		if err == nil {
			return nil
		}
		if !p.Retry || !esl.IsConnectionError(err) {
			return err
		}
		fmt.Fprintf(os.Stderr, "connect failed (%v), retrying in %s\n", err, interval)
		time.Sleep(interval)
	}
}

func splitCommands(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ";") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
