package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"invigilens/internal/alerts"
	"invigilens/internal/config"
	"invigilens/internal/dashboard"
	"invigilens/internal/logging"
	"invigilens/internal/relay"
)

type env struct {
	cfg    config.App
	logger *slog.Logger
	api    *dashboard.Client
}

func rootCommand() *cobra.Command {
	var (
		e         env
		apiURL    string
		statePath string
	)
	root := &cobra.Command{
		Use:          "dashboard",
		Short:        "Headless InvigiLens operator dashboard",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.DashboardAPIURL = strings.TrimRight(apiURL, "/")
			}
			if statePath != "" {
				cfg.DashboardStatePath = statePath
			}
			e.cfg = cfg
			e.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
			e.api = dashboard.NewClient(cfg.DashboardAPIURL)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&apiURL, "api", "", "alert api base url, overrides DASHBOARD_API_URL")
	root.PersistentFlags().StringVar(&statePath, "state", "", "view state file, overrides DASHBOARD_STATE_PATH")

	root.AddCommand(
		watchCommand(&e),
		reviewCommand(&e),
		decideCommand(&e),
		monitorCommand(&e),
		clearNotificationsCommand(&e),
		clearHistoryCommand(&e),
	)
	return root
}

func watchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the alert feed and follow the live stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var lastKey string
			sess, err := dashboard.NewSession(dashboard.SessionConfig{
				API:          e.api,
				RelayURL:     e.cfg.RelayURL(),
				State:        dashboard.NewStateFile(e.cfg.DashboardStatePath),
				PollInterval: e.cfg.DashboardPollInterval,
				Logger:       e.logger,
				OnFeed: func(v dashboard.FeedView) {
					if key := feedKey(v); key != lastKey {
						lastKey = key
						printFeed(out, e.api, v)
					}
				},
				OnStream: func(online bool) {
					if online {
						fmt.Fprintln(out, "stream: online")
					} else {
						fmt.Fprintln(out, "stream: offline")
					}
				},
			})
			if err != nil {
				return err
			}
			return sess.Run(cmd.Context())
		},
	}
}

func reviewCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "List alerts waiting for a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := dashboard.NewReview(e.api)
			if err := r.Load(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if msg := r.Message(); msg != "" {
				fmt.Fprintln(out, msg)
				return nil
			}
			cards := r.Cards()
			list := make([]alerts.Alert, 0, len(cards))
			for _, c := range cards {
				list = append(list, c.Alert)
			}
			printAlerts(out, e.api, list)
			return nil
		},
	}
}

func decideCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "decide <id> <verified|rejected>",
		Short: "Verify or reject a pending alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r := dashboard.NewReview(e.api)
			if err := r.Load(ctx); err != nil {
				return err
			}
			a, err := r.Decide(ctx, args[0], alerts.Status(strings.ToLower(args[1])))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alert %s marked %s.\n", a.ID, a.Status)
			return nil
		},
	}
}

func monitorCommand(e *env) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:       "monitor <on|off>",
		Short:     "Switch detection on the capture side on or off",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			c, err := relay.Dial(ctx, e.cfg.RelayURL(), nil)
			if err != nil {
				return fmt.Errorf("connect relay: %w", err)
			}
			defer c.Close()

			var mon dashboard.Monitor
			if err := mon.Set(c, args[0] == "on"); err != nil {
				return err
			}
			for mon.State().Pending {
				select {
				case <-ctx.Done():
					return fmt.Errorf("no confirmation from relay: %w", ctx.Err())
				case msg, ok := <-c.Messages():
					if !ok {
						return fmt.Errorf("relay closed the connection")
					}
					if msg.Envelope.Event != relay.EventSetMonitoring {
						continue
					}
					var st relay.MonitoringState
					if json.Unmarshal(msg.Envelope.Data, &st) == nil {
						mon.Observe(st)
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Monitoring %s.\n", onOff(mon.State().Confirmed))
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "timeout", 5*time.Second, "how long to wait for the relay echo")
	return cmd
}

func clearNotificationsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-notifications",
		Short: "Hide every alert seen so far from the feed on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			feed, err := dashboard.NewFeed(e.api, dashboard.NewStateFile(e.cfg.DashboardStatePath))
			if err != nil {
				return err
			}
			if err := feed.ClearNotifications(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notifications cleared at %s.\n", feed.LastCleared().Format(time.RFC3339))
			return nil
		},
	}
}

func clearHistoryCommand(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear-history",
		Short: "Delete every alert on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("this deletes all alerts for every operator; pass --yes to confirm")
			}
			n, err := e.api.ClearHistory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d alerts.\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func feedKey(v dashboard.FeedView) string {
	var b strings.Builder
	for _, a := range v.Alerts {
		b.WriteString(a.ID)
		b.WriteString(string(a.Status))
	}
	return b.String()
}

func printFeed(w io.Writer, api *dashboard.Client, v dashboard.FeedView) {
	fmt.Fprintf(w, "-- %s --\n", v.FetchedAt.Format(time.TimeOnly))
	if msg := v.Message(); msg != "" {
		fmt.Fprintln(w, msg)
		return
	}
	printAlerts(w, api, v.Alerts)
}

func printAlerts(w io.Writer, api *dashboard.Client, list []alerts.Alert) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSTUDENT\tVIOLATION\tCONFIDENCE\tSTATUS\tEVIDENCE")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
			a.ID,
			a.Timestamp.Local().Format(time.DateTime),
			a.StudentID,
			a.ViolationType,
			a.Confidence*100,
			a.Status,
			api.EvidenceURL(a.EvidencePath),
		)
	}
	_ = tw.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
