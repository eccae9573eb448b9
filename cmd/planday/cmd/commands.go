package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"planday/internal/analytics"
	"planday/internal/config"
	"planday/internal/credentials"
	"planday/internal/notification"
	"planday/internal/reminder"
	"planday/internal/utils"
)

// =============================================================================
// token
// =============================================================================

// newTokenCmd creates the 'token' subcommand for bot token management
func newTokenCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the Telegram bot token",
		Long:  "Store, inspect and remove the bot token. The token is looked up in the system keyring, then PLANDAY_BOT_TOKEN, then telegram.token in the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	tokenCmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the bot token in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdin := cfg.Stdin
			if stdin == nil {
				stdin = os.Stdin
			}
			return credentials.NewCLIHandler(tokenManager(cfg), stdin, stdout, stderr).Set()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	tokenCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show where the bot token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return credentials.NewCLIHandler(tokenManager(cfg), nil, stdout, stderr).Status(settings.Telegram.Token, jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	tokenCmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the bot token from the system keyring",
		Long:  "Remove the stored token. PLANDAY_BOT_TOKEN and the config file are not affected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return credentials.NewCLIHandler(tokenManager(cfg), nil, stdout, stderr).Delete()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return tokenCmd
}

// =============================================================================
// stats
// =============================================================================

type statsJSON struct {
	Kind          string  `json:"kind"`
	Command       string  `json:"command"`
	Count         int64   `json:"count"`
	Failures      int64   `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show command usage statistics",
		Long:  "Summarize recorded chat events per command: how often they ran, how often they failed and how long they took.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doStats(settings, days, stdout, jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Int("days", 30, "Only include events from the last N days")
	return cmd
}

func doStats(settings *config.Config, days int, stdout io.Writer, jsonOutput bool) error {
	enabled := analytics.IsEnabledFromEnv(settings.IsAnalyticsEnabled())
	tracker, err := analytics.NewTracker(settings.GetAnalyticsPath(), enabled)
	if err != nil {
		return err
	}
	defer func() { _ = tracker.Close() }()

	stats, err := tracker.Summary(time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("failed to read analytics: %w", err)
	}

	if jsonOutput {
		out := make([]statsJSON, 0, len(stats))
		for _, s := range stats {
			out = append(out, statsJSON{
				Kind:          s.Kind,
				Command:       s.Command,
				Count:         s.Count,
				Failures:      s.Failures,
				SuccessRate:   s.SuccessRate(),
				AvgDurationMs: s.AvgDurationMs,
			})
		}
		jsonBytes, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(jsonBytes))
		return nil
	}

	if !enabled {
		_, _ = fmt.Fprintln(stdout, "Analytics is disabled (analytics.enabled in config, or PLANDAY_ANALYTICS_ENABLED).")
	}
	if len(stats) == 0 {
		_, _ = fmt.Fprintf(stdout, "No events recorded in the last %d days.\n", days)
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "%-8s %-12s %7s %7s %8s %9s\n", "KIND", "COMMAND", "COUNT", "FAILED", "SUCCESS", "AVG")
	for _, s := range stats {
		_, _ = fmt.Fprintf(stdout, "%-8s %-12s %7d %7d %7.1f%% %7.0fms\n",
			s.Kind, s.Command, s.Count, s.Failures, s.SuccessRate(), s.AvgDurationMs)
	}
	return nil
}

// =============================================================================
// digest
// =============================================================================

func newDigestCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send today's digest to a user now",
		Long:  "Build the morning digest of pending tasks for a registered user and deliver it immediately. Use --print to only show it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			printOnly, _ := cmd.Flags().GetBool("print")
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doDigest(cmd.Context(), cfg, settings, userID, printOnly, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Int64("user", 0, "User id (as shown by 'planday reminder list')")
	cmd.Flags().Bool("print", false, "Print the digest instead of sending it")
	return cmd
}

func doDigest(ctx context.Context, cfg *Config, settings *config.Config, userID int64, printOnly bool, stdout io.Writer) error {
	ctx = contextOrBackground(ctx)

	if printOnly {
		a, err := newApp(cfg, settings, nil)
		if err != nil {
			return err
		}
		defer a.close()

		text, err := a.reminders.Digest(ctx, userID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, text)
		return nil
	}

	transport := cfg.Transport
	if transport == nil {
		tgTransport, _, err := connectTelegram(ctx, cfg, settings)
		if err != nil {
			return err
		}
		transport = retrying(tgTransport)
	}

	a, err := newApp(cfg, settings, transport)
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := findRegistration(ctx, a.reminders, userID)
	if err != nil {
		return err
	}
	if err := a.reminders.SendDigest(ctx, reg.OwnerID, reg.ChatID); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Digest sent to user %d\n", userID)
	return nil
}

// findRegistration returns the registration of a user who started the bot
func findRegistration(ctx context.Context, svc *reminder.Service, userID int64) (*reminder.Registration, error) {
	regs, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		if regs[i].OwnerID == userID {
			return &regs[i], nil
		}
	}
	return nil, utils.WrapWithSuggestion(
		fmt.Errorf("user %d has not started the bot", userID),
		"The user must send /start once so the bot knows their chat",
	)
}

// =============================================================================
// config
// =============================================================================

func newConfigCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintln(stdout, configPath(cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the documented sample config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cfg)
			if err := config.WriteSample(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Created %s\n", path)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the config file for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cfg)
			settings, err := config.LoadFromPath(path)
			if err != nil {
				return err
			}
			if settings == nil {
				return utils.WrapWithSuggestion(
					fmt.Errorf("config file not found: %s", path),
					"Run 'planday config init' to create it",
				)
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(stdout, "%s is valid\n", path)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return configCmd
}

// =============================================================================
// reminder
// =============================================================================

func newReminderCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	reminderCmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage daily digest registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	reminderCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users receiving the daily digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doReminderList(cmd.Context(), cfg, settings, stdout, jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Stop the daily digest for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, settings, nil)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.reminders.Unregister(contextOrBackground(cmd.Context()), userID)
			if err != nil {
				return err
			}
			if !removed {
				_, _ = fmt.Fprintf(stdout, "User %d has no daily reminder\n", userID)
				return nil
			}
			_, _ = fmt.Fprintf(stdout, "Removed daily reminder for user %d\n", userID)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	removeCmd.Flags().Int64("user", 0, "User id")
	reminderCmd.AddCommand(removeCmd)

	return reminderCmd
}

type registrationJSON struct {
	UserID       int64  `json:"user_id"`
	ChatID       int64  `json:"chat_id"`
	RegisteredAt string `json:"registered_at"`
	Time         string `json:"time"`
}

func doReminderList(ctx context.Context, cfg *Config, settings *config.Config, stdout io.Writer, jsonOutput bool) error {
	a, err := newApp(cfg, settings, nil)
	if err != nil {
		return err
	}
	defer a.close()

	regs, err := a.reminders.List(contextOrBackground(ctx))
	if err != nil {
		return err
	}
	at := a.reminders.Time().String()

	if jsonOutput {
		out := make([]registrationJSON, 0, len(regs))
		for _, r := range regs {
			out = append(out, registrationJSON{
				UserID:       r.OwnerID,
				ChatID:       r.ChatID,
				RegisteredAt: r.RegisteredAt.UTC().Format(time.RFC3339),
				Time:         at,
			})
		}
		jsonBytes, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(jsonBytes))
		return nil
	}

	if !settings.IsReminderEnabled() {
		_, _ = fmt.Fprintln(stdout, "Daily reminders are disabled (reminder.enabled: false).")
	}
	if len(regs) == 0 {
		_, _ = fmt.Fprintln(stdout, "No users registered. Users register by sending /start.")
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Daily digest at %s for %d user(s):\n", at, len(regs))
	for _, r := range regs {
		_, _ = fmt.Fprintf(stdout, "  user %d  chat %d  since %s\n", r.OwnerID, r.ChatID, utils.FormatDay(r.RegisteredAt))
	}
	return nil
}

// =============================================================================
// notification
// =============================================================================

func newNotificationCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	notificationCmd := &cobra.Command{
		Use:   "notification",
		Short: "Test digest delivery and read the notification log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification to a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			return doNotificationTest(contextOrBackground(cmd.Context()), cfg, settings, userID, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	testCmd.Flags().Int64("user", 0, "User id")
	notificationCmd.AddCommand(testCmd)

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			path := settings.GetNotificationLogPath()
			entries, err := notification.ReadLog(path)
			if err != nil {
				return err
			}
			if userID, _ := cmd.Flags().GetInt64("user"); userID != 0 {
				entries = notification.FilterByOwner(entries, userID)
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(stdout, "No notifications logged.")
				if !settings.Reminder.LogNotification {
					_, _ = fmt.Fprintln(stdout, "Set reminder.log_notification: true to keep a log of sent digests.")
				}
				return nil
			}
			for _, entry := range entries {
				_, _ = fmt.Fprintln(stdout, entry.String())
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	logCmd.Flags().Int64("user", 0, "Only show notifications for this user")
	logCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cfg)
			if err != nil {
				return err
			}
			if err := notification.ClearLog(settings.GetNotificationLogPath()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Notification log cleared.")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	notificationCmd.AddCommand(logCmd)

	return notificationCmd
}

func doNotificationTest(ctx context.Context, cfg *Config, settings *config.Config, userID int64, stdout io.Writer) error {
	transport := cfg.Transport
	if transport == nil {
		tgTransport, _, err := connectTelegram(ctx, cfg, settings)
		if err != nil {
			return err
		}
		transport = retrying(tgTransport)
	}

	a, err := newApp(cfg, settings, transport)
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := findRegistration(ctx, a.reminders, userID)
	if err != nil {
		return err
	}

	err = a.notifier.Send(notification.Notification{
		Type:      notification.NotifyTest,
		Title:     "Test notification",
		Message:   "🔔 This is a test notification from planday.",
		ChatID:    reg.ChatID,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			notification.MetaOwnerID: strconv.FormatInt(userID, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send test notification: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Test notification sent to user %d\n", userID)
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
