// Command vibemate is the terminal client: guided setup of the user profile and
// companion persona, then a streamed chat with the companion.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/backend"
	"vibemate.dev/vibemate/internal/config"
	"vibemate.dev/vibemate/internal/kvstore"
	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/profile"
	"vibemate.dev/vibemate/internal/term"
)

type options struct {
	backendURL string
	dbPath     string
	timeout    time.Duration
	style      string
	verbose    bool
	live       bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "vibemate",
		Short: "VibeMate - your AI companion in the terminal",
		Long: `VibeMate walks you through a short setup (who you are, who your companion
should be) and then lets you chat with the companion you designed.

Run "vibemate setup" first, then "vibemate chat".`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
			if opts.backendURL == "" {
				opts.backendURL = config.AppConfig.BackendURL
			}
			if opts.dbPath == "" {
				opts.dbPath = config.AppConfig.StateDBPath
			}
			if opts.timeout <= 0 {
				opts.timeout = config.AppConfig.RequestTimeout
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "Backend base URL (or set BACKEND_URL)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Local state database (or set VIBEMATE_STATE_DB)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "Timeout for profile requests (or set REQUEST_TIMEOUT_SECONDS)")
	root.PersistentFlags().StringVar(&opts.style, "style", "", "Markdown style: dark, light, notty (default: detect)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newSetupCmd(opts),
		newChatCmd(opts),
		newShowCmd(opts),
		newExportCmd(opts),
		newResetCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a subcommand needs, opened from the resolved options.
type app struct {
	opts     *options
	logger   *zap.Logger
	store    *kvstore.SQLite
	client   *backend.Client
	repo     *profile.Repository
	styles   term.Styles
	renderer *term.Renderer
	toaster  *term.Toaster
	in       *bufio.Reader
	out      io.Writer
}

func openApp(cmd *cobra.Command, opts *options) (*app, error) {
	level := "WARN"
	if opts.verbose {
		level = "DEBUG"
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}

	store, err := kvstore.NewSQLite(opts.dbPath)
	if err != nil {
		return nil, err
	}

	renderer, err := term.NewRenderer(80, opts.style)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := backend.NewClient(opts.backendURL, opts.timeout, logger)
	styles := term.DefaultStyles()
	out := cmd.OutOrStdout()
	return &app{
		opts:     opts,
		logger:   logger,
		store:    store,
		client:   client,
		repo:     profile.NewRepository(store, client, logger),
		styles:   styles,
		renderer: renderer,
		toaster:  term.NewToaster(out, styles),
		in:       bufio.NewReader(cmd.InOrStdin()),
		out:      out,
	}, nil
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}

// readLine returns the next input line without its line ending. A final line
// without a newline is returned before io.EOF.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ask prints a prompt with the current value and returns the answer, or the
// current value when the answer is empty.
func (a *app) ask(label, current string) (string, error) {
	prompt := a.styles.Label.Render(label)
	if current != "" {
		prompt += a.styles.Muted.Render(" [" + current + "]")
	}
	fmt.Fprint(a.out, prompt+": ")

	line, err := a.readLine()
	if err != nil {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return current, nil
	}
	return line, nil
}

// choose lists numbered options. The answer may be a number or free text.
func (a *app) choose(label string, options, descriptions []string, current string) (string, error) {
	for i, o := range options {
		line := fmt.Sprintf("  %d) %s", i+1, o)
		if i < len(descriptions) && descriptions[i] != "" {
			line += a.styles.Muted.Render(" - " + descriptions[i])
		}
		fmt.Fprintln(a.out, line)
	}
	answer, err := a.ask(label, current)
	if err != nil {
		return "", err
	}
	if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(options) {
		return options[n-1], nil
	}
	return answer, nil
}
