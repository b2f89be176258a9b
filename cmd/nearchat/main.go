// nearchat — CLI entry point.
//
// Sends short text messages over a lossy, small-MTU line channel: a BLE-UART
// bridge on a serial port, or a WebSocket / WebRTC DataChannel standing in for
// the radio between two machines. Messages are chunked into parcels, verified
// with a checksum and recovered with repeat requests when lines go missing.
//
// It can be launched interactively (no subcommand) or with one of the host,
// client and serial subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/nearchat/internal/config"
	"github.com/1ureka/nearchat/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(config.Default()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	var (
		debug    bool
		logLevel string
		pin      string
	)

	root := &cobra.Command{
		Use:           "nearchat",
		Short:         "Chat over a lossy short-range link",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := util.SetLogLevel(logLevel); err != nil {
				return err
			}
			if debug {
				util.EnableDebug()
			}
			pterm.Info.Println(fmt.Sprintf("nearchat — v%s", version))
			pterm.Println()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand: interactive mode.
			return report(runInteractive(cmd.Context(), cfg))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "Stable id announced to peers")
	flags.StringVar(&cfg.Profile, "profile", cfg.Profile, "Text returned when a peer asks for our bio")
	flags.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Characters per parcel")
	flags.DurationVar(&cfg.SendInterval, "send-interval", cfg.SendInterval, "Time between outbound lines")
	flags.DurationVar(&cfg.ParcelDelay, "parcel-delay", cfg.ParcelDelay, "Time between parcels of one message")
	flags.DurationVar(&cfg.ActivityWindow, "activity-window", cfg.ActivityWindow, "Hold outbound lines while an inbound message arrived within this window")
	flags.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "Forget unfinished messages idle for this long")
	flags.DurationVar(&cfg.NudgeAfter, "nudge-after", cfg.NudgeAfter, "Re-request missing parcels of messages idle for this long (0 disables)")
	flags.IntVar(&cfg.GapRepeatThreshold, "gap-threshold", cfg.GapRepeatThreshold, "Missing parcels above this count trigger a whole-message repeat")
	flags.BoolVar(&cfg.AckDelivered, "ack", cfg.AckDelivered, "Acknowledge delivered messages")
	flags.Float64Var(&cfg.Loss, "loss", cfg.Loss, "Fraction of outbound lines to drop (testing)")
	flags.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "SQLite file for message history (empty disables)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")

	host := &cobra.Command{
		Use:   "host",
		Short: "Wait for a peer on a PIN-protected WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleHost
			return report(runHost(cmd.Context(), cfg))
		},
	}
	host.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Address to listen on (use :0 for all interfaces)")
	host.Flags().BoolVar(&cfg.WebRTC, "webrtc", false, "Move to a lossy WebRTC DataChannel after pairing")

	client := &cobra.Command{
		Use:   "client <url>",
		Short: "Connect to a waiting host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleClient
			wsURL, err := normalizeWSURL(args[0], pin)
			if err != nil {
				return report(err)
			}
			cfg.URL = wsURL
			return report(runClient(cmd.Context(), cfg))
		},
	}
	client.Flags().StringVar(&pin, "pin", "", "PIN shown by the host (or ?pin= in the URL)")
	client.Flags().BoolVar(&cfg.WebRTC, "webrtc", false, "Move to a lossy WebRTC DataChannel after pairing")

	serialCmd := &cobra.Command{
		Use:   "serial <port>",
		Short: "Talk through a BLE-UART bridge on a serial port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleSerial
			cfg.SerialPort = args[0]
			return report(runSerial(cmd.Context(), cfg))
		},
	}
	serialCmd.Flags().IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Baud rate")

	root.AddCommand(host, client, serialCmd)
	return root
}

// report logs err unless it is a plain shutdown.
func report(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		util.LogInfo("connection closed")
		return nil
	}
	util.LogError("%v", err)
	return err
}
