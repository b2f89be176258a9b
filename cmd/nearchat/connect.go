package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/nearchat/internal/config"
	"github.com/1ureka/nearchat/internal/signaling"
	"github.com/1ureka/nearchat/internal/transport"
	"github.com/1ureka/nearchat/internal/util"
)

const pinLength = 6

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the role and its parameters when no subcommand is
// given.
func runInteractive(ctx context.Context, cfg *config.Config) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host   — Wait for a peer",
			"Client — Connect to a waiting host",
			"Serial — Use a BLE-UART bridge",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Host"):
		cfg.Role = config.RoleHost
		return runHost(ctx, cfg)
	case strings.HasPrefix(role, "Client"):
		cfg.Role = config.RoleClient
		cfg.URL = askURL()
		return runClient(ctx, cfg)
	default:
		cfg.Role = config.RoleSerial
		cfg.SerialPort = askText("Serial port (e.g. /dev/ttyUSB0)")
		cfg.BaudRate = askBaud(cfg.BaudRate)
		return runSerial(ctx, cfg)
	}
}

// runHost waits for one client, optionally upgrades to WebRTC, then chats.
func runHost(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	pin := signaling.GeneratePIN(pinLength)
	srv := signaling.NewServer(pin)
	addr, err := srv.Start(cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer srv.Close()

	pterm.DefaultBox.WithTitle("Rendezvous").Println(
		fmt.Sprintf("Address : ws://%s/ws\nPIN     : %s", addr, pin))
	pterm.Println()
	util.LogInfo("waiting for a peer...")

	conn, err := srv.WaitForClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for client: %w", err)
	}
	util.LogSuccess("peer connected from %s", conn.RemoteAddr())
	srv.Close()

	if cfg.WebRTC {
		dc, err := signaling.UpgradeAsHost(ctx, conn)
		if err != nil {
			return err
		}
		return runChat(ctx, cfg, dc)
	}
	return runChat(ctx, cfg, transport.NewWebSocket(ctx, conn))
}

// runClient dials the host, optionally upgrades to WebRTC, then chats.
func runClient(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	util.LogInfo("connecting to %s", redactPIN(cfg.URL))
	conn, err := signaling.Connect(ctx, cfg.URL)
	if err != nil {
		return err
	}
	util.LogSuccess("connected")

	if cfg.WebRTC {
		dc, err := signaling.UpgradeAsClient(ctx, conn)
		if err != nil {
			return err
		}
		return runChat(ctx, cfg, dc)
	}
	return runChat(ctx, cfg, transport.NewWebSocket(ctx, conn))
}

// runSerial opens the bridge's serial port, then chats.
func runSerial(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.SerialPort == "" {
		return errors.New("missing serial port")
	}

	s, err := transport.OpenSerial(ctx, cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		return err
	}
	return runChat(ctx, cfg, s)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a WebSocket URL and makes sure it targets /ws with
// a PIN. An explicit pin overrides one found in the URL.
func normalizeWSURL(raw, pin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	scheme := "ws"
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "https":
		scheme = "wss"
	}

	if pin == "" {
		pin = u.Query().Get("pin")
	}
	if pin == "" {
		return "", errors.New("missing PIN: pass --pin or add ?pin= to the URL")
	}

	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: url.Values{"pin": {pin}}.Encode()}
	return out.String(), nil
}

// redactPIN hides the PIN when logging a URL.
func redactPIN(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("pin") {
		q.Set("pin", "****")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// askURL prompts until a usable WebSocket URL with a PIN is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host URL (e.g. ws://192.168.1.20:40123/ws)").
			Show()
		pin, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("PIN").
			Show()

		wsURL, err := normalizeWSURL(raw, strings.TrimSpace(pin))
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: %v", err)
	}
}

// askText prompts until a non-empty answer is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		if s := strings.TrimSpace(raw); s != "" {
			pterm.Println()
			return s
		}
		util.LogWarning("please enter a value")
	}
}

// askBaud prompts for a baud rate, keeping def on empty input.
func askBaud(def int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Baud rate [%d]", def)).
			Show()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			pterm.Println()
			return def
		}
		if baud, err := strconv.Atoi(raw); err == nil && baud > 0 {
			pterm.Println()
			return baud
		}
		util.LogWarning("invalid baud rate")
	}
}
