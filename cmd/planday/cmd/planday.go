package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"planday/backend/sqlite"
	"planday/internal/analytics"
	"planday/internal/bot"
	"planday/internal/browser"
	"planday/internal/chat"
	"planday/internal/config"
	"planday/internal/conversation"
	"planday/internal/credentials"
	"planday/internal/metrics"
	"planday/internal/notification"
	"planday/internal/ratelimit"
	"planday/internal/reminder"
	"planday/internal/shutdown"
	"planday/internal/telegram"
	"planday/internal/tui"
	"planday/internal/utils"
	"planday/internal/watcher"
)

// Version is set at build time
var Version = "dev"

// Config holds command-line settings. Transport and Events stand in for
// Telegram when set.
type Config struct {
	ConfigPath string
	DBPath     string
	Verbose    bool

	Keyring credentials.Keyring
	Stdin   io.Reader

	Transport chat.Transport
	Events    <-chan chat.Event
	Now       func() time.Time

	// ProgramOptions are passed to the console UI
	ProgramOptions []tea.ProgramOption
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewPlanday(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			var withSuggestion *utils.ErrorWithSuggestion
			if errors.As(err, &withSuggestion) && withSuggestion.GetSuggestion() != "" {
				_, _ = fmt.Fprintln(stderr, "Hint:", withSuggestion.GetSuggestion())
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func outputErrorJSON(err error, stdout io.Writer) {
	resp := errorResponse{Error: err.Error()}
	var withSuggestion *utils.ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		resp.Suggestion = withSuggestion.GetSuggestion()
	}
	jsonBytes, _ := json.Marshal(resp)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

// NewPlanday creates the root command with injectable IO
func NewPlanday(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "planday",
		Short:   "A personal day planner you chat with",
		Long:    "planday is a chat bot that keeps a per-day task list and sends a morning digest of what is left to do.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.ConfigPath = path
			}
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				cfg.DBPath = dbPath
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Verbose = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the config file (default $XDG_CONFIG_HOME/planday/config.yaml)")
	cmd.PersistentFlags().String("db", "", "Path to the task database")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newRunCmd(stdout, cfg))
	cmd.AddCommand(newConsoleCmd(stdout, cfg))
	cmd.AddCommand(newTokenCmd(stdout, stderr, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newDigestCmd(stdout, cfg))
	cmd.AddCommand(newConfigCmd(stdout, cfg))
	cmd.AddCommand(newReminderCmd(stdout, cfg))
	cmd.AddCommand(newNotificationCmd(stdout, cfg))

	return cmd
}

// =============================================================================
// Wiring
// =============================================================================

// configPath returns the config file in use
func configPath(cfg *Config) string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}
	return config.DefaultConfigPath()
}

// loadSettings reads the config file, applies flags and sets up logging
func loadSettings(cfg *Config) (*config.Config, error) {
	settings, err := config.Load(configPath(cfg))
	if err != nil {
		return nil, err
	}
	settings.ApplyFlags(cfg.DBPath, cfg.Verbose)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath(cfg), err)
	}

	logger := utils.GetLogger()
	logger.SetVerbose(settings.Logging.Verbose)
	if err := logger.SetFormat(settings.GetLogFormat()); err != nil {
		return nil, err
	}
	return settings, nil
}

// openStore opens the task database, creating its directory
func openStore(settings *config.Config) (*sqlite.Backend, error) {
	dbPath := settings.GetDatabasePath()
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("could not create data directory: %w", err)
		}
	}
	return sqlite.New(dbPath)
}

// tokenManager builds the credential manager, honoring an injected keyring
func tokenManager(cfg *Config) *credentials.Manager {
	if cfg.Keyring != nil {
		return credentials.NewManager(credentials.WithKeyring(cfg.Keyring))
	}
	return credentials.NewManager()
}

// connectTelegram resolves the bot token and logs in
func connectTelegram(ctx context.Context, cfg *Config, settings *config.Config) (*telegram.Transport, *telegram.Poller, error) {
	token, err := tokenManager(cfg).Token(ctx, settings.Telegram.Token)
	if err != nil {
		return nil, nil, err
	}
	api, err := telegram.Connect(token, settings.Telegram.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	return telegram.NewTransport(api), telegram.NewPoller(api, settings.GetPollTimeout()), nil
}

// retrying wraps a network transport so throttled replies are retried
func retrying(transport chat.Transport) chat.Transport {
	return ratelimit.NewTransport(transport, ratelimit.Config{
		MaxRetries:   3,
		EnableJitter: true,
	})
}

// app is the wired planner: store, reminders, analytics and the bot
type app struct {
	settings  *config.Config
	store     *sqlite.Backend
	scheduler *reminder.CronScheduler
	reminders *reminder.Service
	notifier  notification.NotificationManager
	tracker   *analytics.Tracker
	bot       *bot.Bot
}

// newApp wires every component around transport. A nil transport still
// allows the store, reminder and analytics commands.
func newApp(cfg *Config, settings *config.Config, transport chat.Transport) (*app, error) {
	store, err := openStore(settings)
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings, store: store}

	a.scheduler = reminder.NewCronScheduler(nil)
	a.reminders, err = reminder.NewService(settings.ReminderSettings(), store.DB(), store, a.scheduler)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var notifyOpts []notification.Option
	if transport != nil {
		notifyOpts = append(notifyOpts, notification.WithTransport(transport))
	}
	a.notifier, err = notification.NewManager(settings.NotificationSettings(), notifyOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.reminders.SetNotifier(a.notifier)
	a.reminders.SetDigestObserver(metrics.ObserveDigest)

	a.tracker, err = analytics.NewTracker(settings.GetAnalyticsPath(), analytics.IsEnabledFromEnv(settings.IsAnalyticsEnabled()))
	if err != nil {
		utils.Warnf("analytics unavailable: %v", err)
		a.tracker = nil
	} else if a.tracker.Enabled() {
		if n, err := a.tracker.Cleanup(settings.GetAnalyticsRetentionDays()); err != nil {
			utils.Warnf("analytics cleanup failed: %v", err)
		} else if n > 0 {
			utils.Debugf("removed %d old analytics events", n)
		}
	}

	if cfg.Now != nil {
		a.reminders.SetClock(cfg.Now)
	}

	if transport != nil {
		b := browser.New(store)
		engine := conversation.New(store, b, conversation.NewSessions(),
			conversation.WithTransitionHook(func(flow conversation.Flow, from, to conversation.State) {
				metrics.ObserveTransition(flow.String(), from.String(), to.String())
			}),
		)

		opts := []bot.Option{bot.WithReminders(a.reminders, a.reminders.Time())}
		if a.tracker != nil {
			opts = append(opts, bot.WithTracker(a.tracker))
		}
		if cfg.Now != nil {
			opts = append(opts, bot.WithClock(cfg.Now))
		}
		a.bot = bot.New(transport, engine, b, opts...)
	}

	return a, nil
}

// start launches the digest scheduler with every persisted registration
func (a *app) start(ctx context.Context) error {
	if !a.settings.IsReminderEnabled() {
		utils.Warnf("Daily reminders are disabled")
		return nil
	}
	restored, err := a.reminders.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore reminders: %w", err)
	}
	a.scheduler.Start()
	utils.Infof("Restored %d daily reminders at %s", restored, a.reminders.Time())
	return nil
}

// register adds the app's cleanups in start-up order
func (a *app) register(mgr *shutdown.Manager) {
	mgr.RegisterCleanup("store", func(ctx context.Context) error {
		return a.store.Close()
	})
	if a.tracker != nil {
		mgr.RegisterCleanup("analytics", func(ctx context.Context) error {
			return a.tracker.Close()
		})
	}
	mgr.RegisterCleanup("notifier", func(ctx context.Context) error {
		return a.notifier.Close()
	})
	mgr.RegisterCleanup("scheduler", func(ctx context.Context) error {
		a.scheduler.Stop()
		return nil
	})
}

// close releases resources when no shutdown manager is involved
func (a *app) close() {
	_ = a.notifier.Close()
	if a.tracker != nil {
		_ = a.tracker.Close()
	}
	_ = a.store.Close()
}

// watchConfig applies logging.verbose from the config file while running
func watchConfig(mgr *shutdown.Manager, cfg *Config) {
	path := configPath(cfg)
	w, err := watcher.New(watcher.DefaultConfig(path, func(changed string) {
		reloaded, err := config.LoadFromPath(changed)
		if err != nil {
			utils.Warnf("ignoring config change: %v", err)
			return
		}
		if reloaded == nil {
			return
		}
		verbose := reloaded.Logging.Verbose || cfg.Verbose
		utils.SetVerboseMode(verbose)
		utils.Infof("Reloaded %s (verbose=%t)", changed, verbose)
	}))
	if err != nil {
		utils.Warnf("config watcher unavailable: %v", err)
		return
	}
	if err := w.Start(); err != nil {
		utils.Warnf("config watcher unavailable: %v", err)
		return
	}
	mgr.RegisterCleanup("watcher", func(ctx context.Context) error {
		w.Stop()
		return nil
	})
}

// =============================================================================
// run
// =============================================================================

func newRunCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot",
		Long:  "Serve chat events with long polling until interrupted, and send the daily digest to every user who started the bot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doRun(cfg, settings, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doRun(cfg *Config, settings *config.Config, stdout io.Writer) error {
	mgr := shutdown.NewManager()
	stop := mgr.HandleSignals()
	defer stop()
	ctx := mgr.Context()

	transport, events := cfg.Transport, cfg.Events
	var poller *telegram.Poller
	if transport == nil {
		tgTransport, tgPoller, err := connectTelegram(ctx, cfg, settings)
		if err != nil {
			return err
		}
		transport, poller = retrying(tgTransport), tgPoller
	}

	a, err := newApp(cfg, settings, transport)
	if err != nil {
		return err
	}
	a.register(mgr)

	if err := a.start(ctx); err != nil {
		mgr.Shutdown()
		_ = mgr.WaitTimeout(shutdown.DefaultTimeout)
		return err
	}

	if listen := settings.Metrics.Listen; listen != "" {
		go func() {
			if err := metrics.Serve(ctx, listen); err != nil {
				utils.Errorf("metrics endpoint failed: %v", err)
			}
		}()
		utils.Infof("Serving metrics on %s/metrics", listen)
	}

	watchConfig(mgr, cfg)

	if events == nil {
		events = poller.Events(ctx)
	}

	_, _ = fmt.Fprintln(stdout, "planday is running. Press Ctrl+C to stop.")
	serveErr := a.bot.Serve(ctx, events)

	mgr.Shutdown()
	if err := mgr.WaitTimeout(shutdown.DefaultTimeout); err != nil {
		utils.Warnf("shutdown did not finish: %v", err)
	}
	_, _ = fmt.Fprintln(stdout, "planday stopped.")

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// =============================================================================
// console
// =============================================================================

func newConsoleCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the planner in the terminal",
		Long:  "Open a local chat with the planner. Inline buttons are selected with Tab and the arrow keys.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doConsole(cfg, settings, userID, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Int64("user", 1, "User id to chat as")
	return cmd
}

func doConsole(cfg *Config, settings *config.Config, userID int64, stdout io.Writer) error {
	bl, err := utils.NewBackgroundLoggerWithEnabled(settings.IsBackgroundLoggingEnabled())
	if err != nil {
		utils.Warnf("background logging unavailable: %v", err)
	}
	utils.GetLogger().SetOutput(bl.Writer())
	defer func() {
		utils.GetLogger().SetOutput(os.Stderr)
		bl.Close()
	}()

	console := tui.NewConsole()
	a, err := newApp(cfg, settings, console)
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager()
	a.register(mgr)
	defer func() {
		mgr.Shutdown()
		_ = mgr.WaitTimeout(shutdown.DefaultTimeout)
	}()

	if err := a.start(mgr.Context()); err != nil {
		return err
	}

	opts := append([]tea.ProgramOption{tea.WithOutput(stdout)}, cfg.ProgramOptions...)
	if cfg.Stdin != nil {
		opts = append(opts, tea.WithInput(cfg.Stdin))
	}
	program := tea.NewProgram(tui.New(a.bot.Handle, console, userID), opts...)
	console.SetNotify(func() {
		program.Send(tui.RefreshMsg{})
	})

	_, err = program.Run()
	if bl.IsEnabled() {
		_, _ = fmt.Fprintf(stdout, "Log written to %s\n", bl.GetLogPath())
	}
	return err
}
