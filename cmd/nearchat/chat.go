package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/nearchat/internal/config"
	"github.com/1ureka/nearchat/internal/engine"
	"github.com/1ureka/nearchat/internal/history"
	"github.com/1ureka/nearchat/internal/peers"
	"github.com/1ureka/nearchat/internal/protocol"
	"github.com/1ureka/nearchat/internal/transport"
	"github.com/1ureka/nearchat/internal/util"
)

const (
	pingInterval  = 30 * time.Second
	statsInterval = 30 * time.Second
	historyShown  = 10
	defaultPeer   = "peer"

	// forgetPeersAfter bounds how long a silent device stays in the directory,
	// across restarts included.
	forgetPeersAfter = 24 * time.Hour
)

// runChat wires a transport to an engine and the terminal until the
// transport closes, stdin ends or ctx is cancelled.
func runChat(ctx context.Context, cfg *config.Config, tr transport.LineTransport) error {
	defer tr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Loss > 0 {
		util.LogWarning("dropping %.0f%% of outbound lines", cfg.Loss*100)
		tr = transport.NewLossy(tr, cfg.Loss)
	}

	var db *history.DB
	if cfg.HistoryPath != "" {
		var err error
		if db, err = history.Open(cfg.HistoryPath); err != nil {
			return err
		}
		defer db.Close()
		if err := history.Migrate(db); err != nil {
			return err
		}
		showHistory(db)
	}

	dir := &directory{Directory: peers.NewDirectory(), db: db}
	if db != nil {
		if n := restorePeers(dir.Directory, db, forgetPeersAfter); n > 0 {
			util.LogInfo("restored %d known device(s)", n)
		}
	}
	app := &chatApp{cfg: cfg, db: db, dir: dir}

	eng, err := engine.New(cfg, tr, engine.WithPeerDirectory(dir), engine.WithApplication(app))
	if err != nil {
		return err
	}
	app.eng = eng
	tr.OnLine(eng.OnLineReceived)

	go eng.Run(ctx)
	util.StartStatsReporter(ctx, eng.Stats(), statsInterval)
	go keepAnnouncing(ctx, app)

	util.LogSuccess("ready as %s; type a message, /help for commands", cfg.DeviceID)

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		app.readInput(ctx, os.Stdin, cancel)
	}()

	select {
	case <-ctx.Done():
	case <-tr.Done():
		util.LogWarning("link closed by peer")
	case <-inputDone:
	}
	return nil
}

// keepAnnouncing pings the peer now and then so it can map our device id to
// our current address.
func keepAnnouncing(ctx context.Context, app *chatApp) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	app.eng.Ping(app.target())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.dir.Forget(forgetPeersAfter); n > 0 {
				util.LogDebug("forgot %d silent device(s)", n)
			}
			app.eng.Ping(app.target())
		}
	}
}

// restorePeers seeds dir with devices recorded in earlier sessions, skipping
// those silent for longer than maxAge.
func restorePeers(dir *peers.Directory, db *history.DB, maxAge time.Duration) int {
	records, err := db.Peers()
	if err != nil {
		util.LogWarning("failed to read known devices: %v", err)
		return 0
	}
	for _, r := range records {
		dir.Restore(peers.Peer{DeviceID: r.DeviceID, Address: r.Address, LastSeen: r.LastSeen})
	}
	dir.Forget(maxAge)
	return len(dir.List())
}

func showHistory(db *history.DB) {
	msgs, err := db.Recent(historyShown)
	if err != nil {
		util.LogWarning("failed to read history: %v", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	pterm.DefaultSection.Println("Recent messages")
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		pterm.Printfln("%s %s", pterm.Gray(m.ReceivedAt.Format("02 Jan 15:04")), formatMessage(m.OriginID, m.Command, m.Body))
	}
	pterm.Println()
}

// ---------------------------------------------------------------------------
// Application
// ---------------------------------------------------------------------------

// chatApp receives engine results and turns terminal input into submissions.
type chatApp struct {
	cfg *config.Config
	eng *engine.Engine
	db  *history.DB
	dir *directory
}

var _ engine.Application = (*chatApp)(nil)

func (a *chatApp) OnDelivered(originID string, cmd protocol.Command, payload string) {
	pterm.Println(formatMessage(originID, cmd, payload))

	if a.db == nil || cmd == protocol.CommandGetProfile {
		return
	}
	if _, err := a.db.Record(originID, cmd, payload, time.Now()); err != nil {
		util.LogWarning("%v", err)
	}
}

func (a *chatApp) OnProfileRequest(peer string) {
	profile := a.cfg.Profile
	if profile == "" {
		profile = "(no profile)"
	}
	util.LogInfo("%s asked for our profile", a.describe(peer))
	if _, err := a.eng.Submit(peer, protocol.CommandGetProfile, profile, ""); err != nil {
		util.LogWarning("failed to answer profile request: %v", err)
	}
}

func (a *chatApp) OnAcknowledged(peer, transferID string) {
	util.LogDebug("[%s] delivered to %s", transferID, a.describe(peer))
}

// describe names the device last seen at peer, when known.
func (a *chatApp) describe(peer string) string {
	if id, ok := a.dir.DeviceAt(peer); ok {
		return fmt.Sprintf("%s (%s)", id, peer)
	}
	return peer
}

// target is where outgoing messages go: the most recently seen device, or
// the transport's only peer before anyone has announced itself.
func (a *chatApp) target() string {
	if list := a.dir.List(); len(list) > 0 {
		return list[0].DeviceID
	}
	return defaultPeer
}

// formatMessage renders a delivered message for the terminal.
func formatMessage(originID string, cmd protocol.Command, payload string) string {
	switch cmd {
	case protocol.CommandChat:
		return fmt.Sprintf("%s %s", pterm.Cyan(originID+":"), payload)
	case protocol.CommandBroadcast:
		return fmt.Sprintf("%s %s", pterm.Magenta(originID+" (all):"), payload)
	case protocol.CommandGetProfile:
		return fmt.Sprintf("%s %s", pterm.Yellow(originID+" bio:"), payload)
	case protocol.CommandGeneric:
		return fmt.Sprintf("%s %s", pterm.Gray(originID+":"), payload)
	case protocol.CommandNone:
		return fmt.Sprintf("%s %q", pterm.Red(originID+" (no command):"), payload)
	default:
		return fmt.Sprintf("%s %q", pterm.Red(originID+" ("+cmd.String()+"):"), payload)
	}
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

type actionKind int

const (
	actionSend actionKind = iota
	actionBio
	actionPing
	actionPeers
	actionHistory
	actionHelp
	actionQuit
	actionNone
)

type action struct {
	kind actionKind
	cmd  protocol.Command
	text string
}

// parseInput maps one terminal line to an action.
func parseInput(line string) action {
	line = strings.TrimSpace(line)
	if line == "" {
		return action{kind: actionNone}
	}
	if !strings.HasPrefix(line, "/") {
		return action{kind: actionSend, cmd: protocol.CommandChat, text: line}
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/all":
		if rest == "" {
			return action{kind: actionNone}
		}
		return action{kind: actionSend, cmd: protocol.CommandBroadcast, text: rest}
	case "/raw":
		if rest == "" {
			return action{kind: actionNone}
		}
		return action{kind: actionSend, cmd: protocol.CommandGeneric, text: rest}
	case "/bio":
		return action{kind: actionBio}
	case "/ping":
		return action{kind: actionPing}
	case "/peers":
		return action{kind: actionPeers}
	case "/history":
		return action{kind: actionHistory}
	case "/quit", "/exit":
		return action{kind: actionQuit}
	default:
		return action{kind: actionHelp}
	}
}

const helpText = `/all <text>   broadcast to everyone in range
/raw <text>   send a GENERIC message
/bio          ask the peer for its profile
/ping         announce our device id
/peers        list devices seen so far
/history      show recent messages
/quit         leave`

// readInput handles terminal lines until r ends or ctx is done.
func (a *chatApp) readInput(ctx context.Context, r io.Reader, quit context.CancelFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		act := parseInput(scanner.Text())
		switch act.kind {
		case actionSend:
			if _, err := a.eng.Submit(a.target(), act.cmd, act.text, ""); err != nil {
				util.LogWarning("not sent: %v", err)
			}
		case actionBio:
			a.eng.RequestProfile(a.target())
		case actionPing:
			a.eng.Ping(a.target())
		case actionPeers:
			a.printPeers()
		case actionHistory:
			if a.db == nil {
				util.LogWarning("history is disabled; start with --history <file>")
				continue
			}
			showHistory(a.db)
		case actionHelp:
			pterm.Println(helpText)
		case actionQuit:
			quit()
			return
		case actionNone:
		}
	}
}

func (a *chatApp) printPeers() {
	list := a.dir.List()
	if len(list) == 0 {
		pterm.Println("no peers seen yet")
		return
	}
	data := pterm.TableData{{"Device", "Address", "Last seen"}}
	for _, p := range list {
		data = append(data, []string{p.DeviceID, p.Address, p.LastSeen.Format("15:04:05")})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

// directory is the in-memory peer directory, persisting sightings when
// history is enabled.
type directory struct {
	*peers.Directory
	db *history.DB
}

func (d *directory) Observe(peer, payload string) {
	d.Directory.Observe(peer, payload)
	id := strings.TrimSpace(payload)
	if d.db == nil || id == "" || peer == "" {
		return
	}
	if err := d.db.SeePeer(id, peer, time.Now()); err != nil {
		util.LogWarning("%v", err)
	}
}
