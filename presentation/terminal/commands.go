package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"evalconsole/application/evaluation"
	"evalconsole/application/locator"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/browser"
	"evalconsole/infrastructure/config"
	"evalconsole/infrastructure/dom"
	"evalconsole/infrastructure/inputguard"
	"evalconsole/infrastructure/logging"
	"evalconsole/infrastructure/scripts"
	"evalconsole/infrastructure/storage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ErrNoMatch is returned by the locate command when nothing matches
var ErrNoMatch = errors.New("no element matches")

type rootFlags struct {
	logLevel string
	backend  string
	headless bool
}

// NewRootCommand - the evalconsole CLI. Without a subcommand it starts the
// interactive console.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "evalconsole",
		Short:         "Human evaluation console for browser benchmark tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			term, err := NewTerminalInterface(cfg, logger)
			if err != nil {
				return err
			}
			defer term.Close()
			return term.Run()
		},
	}

	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides EVAL_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&flags.backend, "browser", "", "browser backend: playwright or rod (overrides EVAL_BROWSER)")
	root.PersistentFlags().BoolVar(&flags.headless, "headless", false, "run the browser headless (overrides EVAL_HEADLESS)")

	root.AddCommand(newEvalCommand(flags), newLocateCommand(), newScriptCommand())
	return root
}

// Execute - runs the root command against os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig - env config with the root flags applied on top
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = flags.headless
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.NewLogger(cfg.LogLevel, cmd.ErrOrStderr()), nil
}

func newEvalCommand(root *rootFlags) *cobra.Command {
	var (
		email      string
		curriculum string
		logPath    string
		resetLog   bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Walk an annotator through a curriculum of tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			if email == "" {
				email = cfg.Annotator
			}
			if email == "" {
				return fmt.Errorf("annotator email is required (--email or EVAL_ANNOTATOR)")
			}
			if logPath != "" {
				cfg.LogPath = logPath
			}

			tasks, err := config.LoadCurriculum(curriculum)
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			if resetLog {
				logger.Info("Resetting result log")
				if err := store.Reset(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			consoleLogger := logging.NewFrameLogger(cfg.LogLevel, cmd.ErrOrStderr())
			open := func(ctx context.Context) (interfaces.Browser, error) {
				return browser.Open(cfg, logger, consoleLogger)
			}

			opts := evaluation.DefaultOptions()
			opts.URLFilter = cfg.URLFilter
			opts.PollInterval = cfg.PollInterval
			opts.Linger = cfg.Linger
			opts.Utils.TargetFrame = cfg.TargetFrame

			runner := evaluation.NewRunner(open, store, evaluation.NewSnapshotValidator(nil, logger),
				entities.Annotator{Email: email}, opts, logger)

			logger.Infof("Annotator: %s, curriculum: %s, log: %s", email, curriculum, cfg.LogPath)
			summary, err := runner.Run(ctx, tasks)
			printSummary(cmd.OutOrStdout(), summary)
			if evaluation.IsCanceled(err) {
				logger.Warn("Evaluation interrupted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email of the annotator")
	cmd.Flags().StringVar(&curriculum, "curriculum", "", "curriculum file (YAML, or one \"name, seed\" per line)")
	cmd.Flags().StringVar(&logPath, "log", "", "result log path (overrides EVAL_LOG_PATH)")
	cmd.Flags().BoolVar(&resetLog, "reset-log", false, "empty the result log before starting")
	_ = cmd.MarkFlagRequired("curriculum")
	return cmd
}

// openStore - redis when EVAL_REDIS_URL is set, the JSON file log otherwise
func openStore(cfg *config.Config, logger *logrus.Logger) (interfaces.ResultStore, error) {
	if cfg.RedisURL == "" {
		return storage.NewResultLog(cfg.LogPath)
	}
	client, err := storage.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Infof("Logging results to redis under %s", cfg.RedisPrefix)
	return storage.NewRedisResultLog(client, cfg.RedisPrefix), nil
}

func printSummary(w io.Writer, s evaluation.Summary) {
	fmt.Fprintf(w, "\nTasks: %d  skipped: %d  succeeded: %d  failed: %d  abandoned: %d  infeasible: %d\n",
		s.Total, s.Skipped, s.Succeeded, s.Failed, s.Abandoned, s.Infeasible)
}

func newLocateCommand() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "locate <selector> [file]",
		Short: "Find the first element matching a selector across shadow roots of an HTML file",
		Long: `Parses an HTML document (stdin when no file is given) with declarative shadow
roots and prints the outer HTML of the first element matching the selector.
Shallow matches win over matches inside shadow roots.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[1], err)
				}
				defer f.Close()
				in = f
			}

			doc, err := dom.Parse(in)
			if err != nil {
				return err
			}
			logger := logging.NewLogger("warn", cmd.ErrOrStderr())
			el, found, err := locator.NewLocator(doc, logger).WithMaxDepth(maxDepth).Locate(args[0], nil)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w %s", ErrNoMatch, args[0])
			}
			html, err := el.(*dom.Element).OuterHTML()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", locator.DefaultMaxDepth, "maximum shadow root nesting searched")
	return cmd
}

func newScriptCommand() *cobra.Command {
	var (
		policyPath  string
		targetFrame string
		explain     bool
	)

	cmd := &cobra.Command{
		Use:       "script <console|utils>",
		Short:     "Print a rendered page script",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"console", "utils"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				out string
				err error
			)
			switch strings.ToLower(args[0]) {
			case "console":
				policy := inputguard.DefaultPolicy()
				if policyPath != "" {
					if policy, err = inputguard.LoadPolicy(policyPath); err != nil {
						return err
					}
				}
				g := inputguard.NewGuard(policy, logging.NewLogger("warn", cmd.ErrOrStderr()))
				opts := scripts.DefaultConsoleOptions()
				opts.Policy = g.Policy()
				out, err = scripts.Console(opts)
				if explain {
					explainPolicy(cmd.Context(), cmd.ErrOrStderr(), g)
				}
			case "utils":
				opts := scripts.DefaultUtilsOptions()
				opts.TargetFrame = targetFrame
				out, err = scripts.Utils(opts)
			default:
				return fmt.Errorf("unknown script %q (want console or utils)", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "YAML input suppression policy for the console")
	cmd.Flags().StringVar(&targetFrame, "target-frame", scripts.DefaultTargetFrame, "id of the frame task scripts run in")
	cmd.Flags().BoolVar(&explain, "explain", false, "list which pointer events the console suppresses")
	return cmd
}

var sampleEvents = []struct {
	name string
	ev   entities.PointerEvent
}{
	{"right click menu", entities.PointerEvent{Type: entities.EventContextMenu, Button: 2}},
	{"ctrl+click", entities.PointerEvent{Type: entities.EventClick, Button: entities.ButtonPrimary, CtrlKey: true}},
	{"cmd+click", entities.PointerEvent{Type: entities.EventClick, Button: entities.ButtonPrimary, MetaKey: true}},
	{"middle click", entities.PointerEvent{Type: entities.EventAuxClick, Button: entities.ButtonMiddle}},
	{"plain click", entities.PointerEvent{Type: entities.EventClick, Button: entities.ButtonPrimary}},
}

func explainPolicy(ctx context.Context, w io.Writer, g *inputguard.Guard) {
	for _, s := range sampleEvents {
		verdict := "allowed"
		if g.ShouldSuppress(ctx, s.ev) {
			verdict = "suppressed"
		}
		fmt.Fprintf(w, "%-18s %s\n", s.name, verdict)
	}
}
